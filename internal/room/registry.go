package room

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
)

// ErrRoomLimit is returned when creating one more room would exceed the
// configured cap.
var ErrRoomLimit = errors.New("room limit reached")

// Registry owns the identifier → Room table. Rooms are created lazily on
// first join and destroyed when their last connection leaves; the raw map is
// never exposed. Identifiers are opaque and case-sensitive, not validated.
type Registry struct {
	engine       rules.Engine
	cat          *msgcat.Catalog
	initialClock time.Duration
	maxRooms     int

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(engine rules.Engine, cat *msgcat.Catalog, initialClock time.Duration, maxRooms int) *Registry {
	return &Registry{
		engine:       engine,
		cat:          cat,
		initialClock: initialClock,
		maxRooms:     maxRooms,
		rooms:        make(map[string]*Room),
	}
}

// ResolveOrCreate returns the room for id, creating a fresh one with an empty
// roster, initial position and full clocks if absent.
func (g *Registry) ResolveOrCreate(id string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolveLocked(id)
}

// Join resolves or creates the room and attaches the client in one step, so a
// concurrent last-leaver cannot tear the room down between resolve and join.
func (g *Registry) Join(id string, c Client) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolveLocked(id)
	if err != nil {
		return nil, err
	}
	r.Join(c)
	return r, nil
}

// Release detaches the connection from the room and deletes the entry once
// the room is empty, freeing the identifier for lazy re-creation.
func (g *Registry) Release(id, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	if !ok {
		return
	}
	if r.Disconnect(connID) {
		delete(g.rooms, id)
		r.shutdown()
		obslog.L().Info("room_destroy", zap.String("room", id))
	}
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

func (g *Registry) resolveLocked(id string) (*Room, error) {
	if r, ok := g.rooms[id]; ok {
		return r, nil
	}
	if g.maxRooms > 0 && len(g.rooms) >= g.maxRooms {
		return nil, ErrRoomLimit
	}
	r := newRoom(id, g.engine, g.cat, g.initialClock)
	g.rooms[id] = r
	obslog.L().Info("room_create", zap.String("room", id))
	return r, nil
}
