package room

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/rules"
)

type fakeClient struct {
	id string

	mu     sync.Mutex
	events []Event
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *fakeClient) count(action string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Action == action {
			n++
		}
	}
	return n
}

func (c *fakeClient) last(action string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Action == action {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func newTestRegistry(t *testing.T, initialClock time.Duration) *Registry {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return NewRegistry(rules.NewEngine(), cat, initialClock, 0)
}

func mustJoin(t *testing.T, reg *Registry, roomID string, c Client) *Room {
	t.Helper()
	r, err := reg.Join(roomID, c)
	if err != nil {
		t.Fatalf("Join(%s, %s): %v", roomID, c.ID(), err)
	}
	return r
}

func TestJoinOrderAssignsSeats(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}

	mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	ev, ok := a.last("role")
	if !ok || ev.Data.(RolePayload).Color != White {
		t.Fatalf("first joiner should play white, got %+v", ev)
	}
	ev, ok = b.last("role")
	if !ok || ev.Data.(RolePayload).Color != Black {
		t.Fatalf("second joiner should play black, got %+v", ev)
	}
	if c.count("role") != 0 || c.count("spectator") != 1 {
		t.Fatalf("third joiner should be a spectator")
	}

	// everyone gets the snapshot, and only the joiner sees its own join
	for _, cl := range []*fakeClient{a, b, c} {
		if cl.count("state") != 1 {
			t.Fatalf("client %s expected exactly one state event, got %d", cl.id, cl.count("state"))
		}
	}
	st, _ := c.last("state")
	if st.Data.(StatePayload).Turn != White {
		t.Fatalf("fresh room should have white to move")
	}
}

func TestLegalMoveBroadcasts(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	r.SubmitMove("a", rules.MoveRequest{From: "e2", To: "e4"})

	for _, cl := range []*fakeClient{a, b, c} {
		mv, ok := cl.last("move_applied")
		if !ok {
			t.Fatalf("client %s missed the move broadcast", cl.id)
		}
		p := mv.Data.(MovePayload)
		if p.From != "e2" || p.To != "e4" || p.SAN != "e4" || p.Color != White {
			t.Fatalf("unexpected move payload: %+v", p)
		}
		st, _ := cl.last("state")
		sp := st.Data.(StatePayload)
		if sp.Turn != Black || len(sp.MovesSAN) != 1 {
			t.Fatalf("unexpected state after move: %+v", sp)
		}
	}
}

func TestMoveRejectedSilently(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	// out of turn: black moves first
	r.SubmitMove("b", rules.MoveRequest{From: "e7", To: "e5"})
	if b.count("notice") != 1 {
		t.Fatalf("out-of-turn mover should get a local notice")
	}
	if a.count("notice") != 0 || c.count("notice") != 0 {
		t.Fatalf("notices must stay local to the offender")
	}

	// illegal move by white
	r.SubmitMove("a", rules.MoveRequest{From: "e2", To: "e5"})
	if a.count("notice") != 1 {
		t.Fatalf("illegal mover should get a local notice")
	}

	// spectator moves are ignored outright
	r.SubmitMove("c", rules.MoveRequest{From: "e2", To: "e4"})

	for _, cl := range []*fakeClient{a, b, c} {
		if cl.count("move_applied") != 0 || cl.count("state") != 1 {
			t.Fatalf("rejected input must not change state or broadcast (client %s)", cl.id)
		}
	}
}

func TestResignScenario(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	r.SubmitMove("a", rules.MoveRequest{From: "e2", To: "e4"})
	r.Resign("a")

	for _, cl := range []*fakeClient{a, b, c} {
		ev, ok := cl.last("over")
		if !ok {
			t.Fatalf("client %s missed the over broadcast", cl.id)
		}
		p := ev.Data.(OverPayload)
		if p.Reason != ReasonResignation || p.Winner != Black {
			t.Fatalf("unexpected over payload: %+v", p)
		}
		if p.Message != "Black wins by resignation" {
			t.Fatalf("unexpected over message: %q", p.Message)
		}
	}

	// anything after termination is a no-op
	r.SubmitMove("b", rules.MoveRequest{From: "e7", To: "e5"})
	r.Resign("b")
	r.ClaimTimeout("a")
	for _, cl := range []*fakeClient{a, b, c} {
		if cl.count("over") != 1 {
			t.Fatalf("termination must be recorded exactly once (client %s)", cl.id)
		}
		if cl.count("move_applied") != 1 {
			t.Fatalf("no move can be applied after termination (client %s)", cl.id)
		}
	}
}

func TestCheckmateWinnerIsTheMover(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	// fool's mate, black delivers
	r.SubmitMove("a", rules.MoveRequest{From: "f2", To: "f3"})
	r.SubmitMove("b", rules.MoveRequest{From: "e7", To: "e5"})
	r.SubmitMove("a", rules.MoveRequest{From: "g2", To: "g4"})
	r.SubmitMove("b", rules.MoveRequest{From: "d8", To: "h4"})

	ev, ok := a.last("over")
	if !ok {
		t.Fatalf("expected a termination event")
	}
	p := ev.Data.(OverPayload)
	if p.Reason != ReasonCheckmate {
		t.Fatalf("expected checkmate, got %q", p.Reason)
	}
	if p.Winner != Black {
		t.Fatalf("winner must be the seat that just moved, got %q", p.Winner)
	}
	if p.Message != "Black wins by checkmate" {
		t.Fatalf("unexpected message: %q", p.Message)
	}

	// the mate broadcast order: move first, then over
	mvCount := a.count("move_applied")
	if mvCount != 4 {
		t.Fatalf("expected 4 applied moves, got %d", mvCount)
	}
}

func TestRepetitionDrawEndsMatch(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	// knight shuffle until the starting position stands for the third time
	shuffle := []rules.MoveRequest{
		{From: "g1", To: "f3"}, {From: "g8", To: "f6"},
		{From: "f3", To: "g1"}, {From: "f6", To: "g8"},
	}
	movers := []string{"a", "b", "a", "b"}
	for round := 0; round < 2; round++ {
		for i, req := range shuffle {
			r.SubmitMove(movers[i], req)
		}
	}

	for _, cl := range []*fakeClient{a, b} {
		ev, ok := cl.last("over")
		if !ok {
			t.Fatalf("client %s missed the draw broadcast", cl.id)
		}
		p := ev.Data.(OverPayload)
		if p.Reason != ReasonRepetition {
			t.Fatalf("expected repetition, got %q", p.Reason)
		}
		if p.Winner != "" {
			t.Fatalf("a draw has no winner, got %q", p.Winner)
		}
		if p.Message != "Game is a draw by threefold repetition" {
			t.Fatalf("unexpected message: %q", p.Message)
		}
		if cl.count("move_applied") != 8 {
			t.Fatalf("all eight moves were legal, got %d applied", cl.count("move_applied"))
		}
	}
}

func TestDisconnectAwardsWin(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	reg.Release("r1", "b")

	ev, ok := a.last("over")
	if !ok {
		t.Fatalf("remaining player should be notified")
	}
	p := ev.Data.(OverPayload)
	if p.Reason != ReasonDisconnect || p.Winner != White {
		t.Fatalf("unexpected over payload: %+v", p)
	}
}

func TestDisconnectAfterOverEmitsNothing(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	r.Resign("a")
	reg.Release("r1", "b")

	for _, cl := range []*fakeClient{a, c} {
		if cl.count("over") != 1 {
			t.Fatalf("reason already fixed, no second over (client %s)", cl.id)
		}
	}
}

func TestDisconnectWithoutOpponent(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	mustJoin(t, reg, "r1", a)

	reg.Release("r1", "a")

	if a.count("over") != 0 {
		t.Fatalf("no opponent remains, no termination event")
	}
	if reg.Len() != 0 {
		t.Fatalf("empty room must be destroyed")
	}
}

func TestNoSeatRepromotion(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	r.Disconnect("b")

	mustJoin(t, reg, "r1", c)
	if c.count("role") != 0 || c.count("spectator") != 1 {
		t.Fatalf("a freed seat must never be reassigned")
	}
}

func TestTimeoutDecidedByServerClock(t *testing.T) {
	reg := newTestRegistry(t, 20*time.Millisecond)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	time.Sleep(60 * time.Millisecond)

	// near-simultaneous detections: internal timer may already have fired,
	// and both sides claim on top of it
	r.ClaimTimeout("a")
	r.ClaimTimeout("b")

	for _, cl := range []*fakeClient{a, b} {
		if cl.count("over") != 1 {
			t.Fatalf("timeout must be recorded exactly once (client %s, got %d)", cl.id, cl.count("over"))
		}
		ev, _ := cl.last("over")
		p := ev.Data.(OverPayload)
		if p.Reason != ReasonTimeout || p.Winner != Black {
			t.Fatalf("white to move ran out, black wins: %+v", p)
		}
	}
}

func TestMoveAfterFlagFellIsRejected(t *testing.T) {
	reg := newTestRegistry(t, 20*time.Millisecond)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	time.Sleep(60 * time.Millisecond)

	// white's flag is down; the move loses to the clock even if it reaches
	// the room before the expiry timer does
	r.SubmitMove("a", rules.MoveRequest{From: "e2", To: "e4"})

	for _, cl := range []*fakeClient{a, b} {
		if cl.count("move_applied") != 0 {
			t.Fatalf("no move can be accepted after the flag fell (client %s)", cl.id)
		}
		ev, ok := cl.last("over")
		if !ok {
			t.Fatalf("client %s missed the timeout broadcast", cl.id)
		}
		p := ev.Data.(OverPayload)
		if p.Reason != ReasonTimeout || p.Winner != Black {
			t.Fatalf("white ran out, black wins: %+v", p)
		}
	}
}

func TestTimeoutClaimWithTimeLeftIsIgnored(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)

	r.ClaimTimeout("b")

	if a.count("over") != 0 || b.count("over") != 0 {
		t.Fatalf("a claim is only a trigger to re-check the server clock")
	}
}

func TestConcurrentTerminationSingleReason(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Resign("a")
	}()
	go func() {
		defer wg.Done()
		reg.Release("r1", "b")
	}()
	wg.Wait()

	if got := c.count("over"); got != 1 {
		t.Fatalf("racing causes must yield exactly one recorded reason, got %d", got)
	}
	ev, _ := c.last("over")
	p := ev.Data.(OverPayload)
	if p.Reason != ReasonResignation && p.Reason != ReasonDisconnect {
		t.Fatalf("reason must be one of the racing causes, got %q", p.Reason)
	}
}

func TestRegistryRecreatesFreshRoom(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	c := &fakeClient{id: "c"}
	r := mustJoin(t, reg, "r1", a)
	mustJoin(t, reg, "r1", b)
	mustJoin(t, reg, "r1", c)

	r.SubmitMove("a", rules.MoveRequest{From: "e2", To: "e4"})
	r.Resign("b")

	reg.Release("r1", "a")
	reg.Release("r1", "b")
	if reg.Len() != 1 {
		t.Fatalf("room still holds the spectator")
	}
	reg.Release("r1", "c")
	if reg.Len() != 0 {
		t.Fatalf("last leaver must destroy the room")
	}

	// same identifier, fresh state
	d := &fakeClient{id: "d"}
	mustJoin(t, reg, "r1", d)
	ev, ok := d.last("role")
	if !ok || ev.Data.(RolePayload).Color != White {
		t.Fatalf("re-created room must assign seats from scratch")
	}
	st, _ := d.last("state")
	sp := st.Data.(StatePayload)
	if len(sp.MovesUCI) != 0 || sp.Status != StatusActive || sp.Turn != White {
		t.Fatalf("re-created room must start from the initial position: %+v", sp)
	}
}

func TestRoomLimit(t *testing.T) {
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	reg := NewRegistry(rules.NewEngine(), cat, time.Minute, 1)

	mustJoin(t, reg, "r1", &fakeClient{id: "a"})
	if _, err := reg.Join("r2", &fakeClient{id: "b"}); err != ErrRoomLimit {
		t.Fatalf("expected ErrRoomLimit, got %v", err)
	}
	// joining an existing room is still fine
	mustJoin(t, reg, "r1", &fakeClient{id: "c"})
}
