package room

import "time"

// clock tracks the two remaining-time counters of a room. Exactly one side
// decrements at any instant, selected by side-to-move; elapsed time is computed
// from server timestamps on each transition, never from client reports.
type clock struct {
	remaining map[Color]time.Duration
	active    Color
	lastTick  time.Time
	running   bool
}

func newClock(initial time.Duration) *clock {
	return &clock{
		remaining: map[Color]time.Duration{White: initial, Black: initial},
	}
}

// start begins decrementing the given side.
func (c *clock) start(active Color, now time.Time) {
	c.active = active
	c.lastTick = now
	c.running = true
}

// press deducts the elapsed time from the active side and hands the clock to
// next, like a player hitting the clock button after a move.
func (c *clock) press(now time.Time, next Color) {
	if !c.running {
		return
	}
	c.settle(now)
	c.active = next
}

// stop freezes both counters.
func (c *clock) stop(now time.Time) {
	if !c.running {
		return
	}
	c.settle(now)
	c.running = false
}

// remainingFor returns the counter for color as of now.
func (c *clock) remainingFor(color Color, now time.Time) time.Duration {
	rem := c.remaining[color]
	if c.running && color == c.active {
		rem -= now.Sub(c.lastTick)
	}
	if rem < 0 {
		return 0
	}
	return rem
}

// expiredSide reports whether the active side's counter has reached zero.
func (c *clock) expiredSide(now time.Time) (Color, bool) {
	if !c.running {
		return "", false
	}
	if c.remainingFor(c.active, now) <= 0 {
		return c.active, true
	}
	return "", false
}

func (c *clock) settle(now time.Time) {
	rem := c.remaining[c.active] - now.Sub(c.lastTick)
	if rem < 0 {
		rem = 0
	}
	c.remaining[c.active] = rem
	c.lastTick = now
}
