package room

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
)

// Room owns one match: the authoritative position, seats, spectators, clocks
// and terminal state. Every operation that touches this state runs under the
// room mutex, one at a time; that serialization is what guarantees exactly one
// termination cause ever wins.
type Room struct {
	id     string
	engine rules.Engine
	cat    *msgcat.Catalog

	mu            sync.Mutex
	start         string
	fen           string
	turn          Color
	players       map[Color]Client
	seatsAssigned int
	spectators    map[string]Client
	movesUCI      []string
	movesSAN      []string
	clk           *clock
	timer         *time.Timer
	status        Status
	reason        Reason
	winner        Color
}

func newRoom(id string, engine rules.Engine, cat *msgcat.Catalog, initialClock time.Duration) *Room {
	return &Room{
		id:         id,
		engine:     engine,
		cat:        cat,
		start:      engine.StartingPosition(),
		fen:        engine.StartingPosition(),
		turn:       White,
		players:    make(map[Color]Client),
		spectators: make(map[string]Client),
		clk:        newClock(initialClock),
		status:     StatusActive,
	}
}

// ID returns the room's opaque identifier.
func (r *Room) ID() string { return r.id }

// Join attaches a connection. The first two connections take the White and
// Black seats in join order; everyone after that is a spectator for good, even
// if a seat frees up later. Only the joiner is notified.
func (r *Room) Join(c Client) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seatsAssigned < 2 {
		color := White
		if r.seatsAssigned == 1 {
			color = Black
		}
		r.players[color] = c
		r.seatsAssigned++
		c.Send(Event{Action: "role", Data: RolePayload{Color: color}})
		obslog.L().Info("room_join",
			zap.String("room", r.id),
			zap.String("conn", c.ID()),
			zap.String("color", string(color)),
		)
		// 두 자리가 차는 순간부터 서버 시계가 흐른다
		if r.seatsAssigned == 2 && r.status == StatusActive {
			r.clk.start(r.turn, now)
			r.armTimerLocked(now)
		}
	} else {
		r.spectators[c.ID()] = c
		c.Send(Event{Action: "spectator"})
		obslog.L().Info("room_spectate", zap.String("room", r.id), zap.String("conn", c.ID()))
	}

	c.Send(Event{Action: "state", Data: r.snapshotLocked(now)})
}

// SubmitMove applies a move request from the given connection. Preconditions
// are checked in order and any failure is a silent no-op for the room; the
// offending connection alone may receive a notice.
func (r *Room) SubmitMove(connID string, req rules.MoveRequest) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusActive {
		return
	}
	// the clock is checked before the move: once the mover's flag has
	// fallen, no move of theirs can beat the expiry timer to the lock
	r.checkClockLocked(now)
	if r.status != StatusActive {
		return
	}
	color, ok := r.seatColorLocked(connID)
	if !ok {
		return
	}
	if color != r.turn {
		r.noticeLocked(connID, "notice.not_your_turn")
		return
	}

	v, err := r.engine.Apply(r.start, r.movesUCI, req)
	if err != nil {
		obslog.L().Error("room_engine_error", zap.String("room", r.id), zap.Error(err))
		return
	}
	if !v.Legal {
		r.noticeLocked(connID, "notice.illegal_move")
		return
	}

	r.fen = v.FEN
	r.movesUCI = append(r.movesUCI, req.UCI())
	r.movesSAN = append(r.movesSAN, v.SAN)
	r.turn = color.Other()
	if r.clk.running {
		r.clk.press(now, r.turn)
		r.armTimerLocked(now)
	}

	r.broadcastLocked(Event{Action: "state", Data: r.snapshotLocked(now)})
	r.broadcastLocked(Event{Action: "move_applied", Data: MovePayload{
		Color:     color,
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
		SAN:       v.SAN,
	}})
	obslog.L().Info("room_move",
		zap.String("room", r.id),
		zap.String("conn", connID),
		zap.String("color", string(color)),
		zap.String("san", v.SAN),
	)

	// Terminal evaluation happens in the same critical section as the move
	// broadcast; no resign, claim or disconnect can slip in between.
	if v.Flags.Terminal() {
		reason, winner := reasonFromFlags(v.Flags, color)
		r.setOverLocked(now, reason, winner)
	}
}

// Resign ends the match in favor of the opponent. Spectators cannot resign.
func (r *Room) Resign(connID string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusActive {
		return
	}
	color, ok := r.seatColorLocked(connID)
	if !ok {
		return
	}
	r.setOverLocked(now, ReasonResignation, color.Other())
}

// ClaimTimeout handles a client's timeout claim. The claim itself proves
// nothing: it only triggers a re-check of the server-owned clocks.
func (r *Room) ClaimTimeout(connID string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusActive {
		return
	}
	r.checkClockLocked(now)
}

// Disconnect detaches a connection. A seated player leaving a live match hands
// the win to the remaining opponent; a finished or opponent-less room emits
// nothing. Reports whether the room is now empty.
func (r *Room) Disconnect(connID string) (empty bool) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
	} else if color, ok := r.seatColorLocked(connID); ok {
		delete(r.players, color)
		if r.status == StatusActive {
			if _, ok := r.players[color.Other()]; ok {
				r.setOverLocked(now, ReasonDisconnect, color.Other())
			}
		}
	}

	return len(r.players) == 0 && len(r.spectators) == 0
}

// Empty reports whether no connection is attached.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0 && len(r.spectators) == 0
}

// shutdown releases the room's timer resources. Called by the registry once
// the room has been removed from the map.
func (r *Room) shutdown() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.clk.stop(now)
}

func (r *Room) onClockExpiry() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusActive {
		return
	}
	r.checkClockLocked(now)
}

// checkClockLocked is the single authority for timeout termination: whoever
// asks (claim, timer, or a late timer racing a move), the server counters
// decide, and the write-once terminal state keeps the outcome unique.
func (r *Room) checkClockLocked(now time.Time) {
	side, expired := r.clk.expiredSide(now)
	if !expired {
		return
	}
	r.setOverLocked(now, ReasonTimeout, side.Other())
}

func (r *Room) setOverLocked(now time.Time, reason Reason, winner Color) {
	if r.status != StatusActive {
		return
	}
	r.status = StatusOver
	r.reason = reason
	r.winner = winner
	r.clk.stop(now)
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	msg, err := r.cat.Render(reason.catalogKey(), map[string]string{"Winner": winner.Label()})
	if err != nil {
		msg = string(reason)
	}
	r.broadcastLocked(Event{Action: "over", Data: OverPayload{
		Reason:  reason,
		Winner:  winner,
		Message: msg,
	}})
	obslog.L().Info("room_over",
		zap.String("room", r.id),
		zap.String("reason", string(reason)),
		zap.String("winner", string(winner)),
	)
}

func (r *Room) armTimerLocked(now time.Time) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.clk.remainingFor(r.turn, now), r.onClockExpiry)
}

func (r *Room) seatColorLocked(connID string) (Color, bool) {
	for color, c := range r.players {
		if c != nil && c.ID() == connID {
			return color, true
		}
	}
	return "", false
}

func (r *Room) noticeLocked(connID string, key string) {
	c, ok := r.clientLocked(connID)
	if !ok {
		return
	}
	text, err := r.cat.Render(key, nil)
	if err != nil {
		return
	}
	c.Send(Event{Action: "notice", Data: NoticePayload{Text: text}})
}

func (r *Room) clientLocked(connID string) (Client, bool) {
	for _, c := range r.players {
		if c != nil && c.ID() == connID {
			return c, true
		}
	}
	if c, ok := r.spectators[connID]; ok {
		return c, true
	}
	return nil, false
}

func (r *Room) snapshotLocked(now time.Time) StatePayload {
	return StatePayload{
		RoomID:       r.id,
		FEN:          r.fen,
		Turn:         r.turn,
		Status:       r.status,
		MovesUCI:     append([]string(nil), r.movesUCI...),
		MovesSAN:     append([]string(nil), r.movesSAN...),
		WhiteClockMS: r.clk.remainingFor(White, now).Milliseconds(),
		BlackClockMS: r.clk.remainingFor(Black, now).Milliseconds(),
		Spectators:   len(r.spectators),
	}
}

// broadcastLocked fans an event out to every attached connection. Client.Send
// is non-blocking, so no network I/O happens while the room lock is held.
func (r *Room) broadcastLocked(ev Event) {
	for _, c := range r.players {
		if c != nil {
			c.Send(ev)
		}
	}
	for _, c := range r.spectators {
		c.Send(ev)
	}
}
