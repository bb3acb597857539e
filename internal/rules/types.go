package rules

import "strings"

// MoveRequest is a client-submitted move. It is broadcast back to the room
// verbatim; the engine never rewrites it.
type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI returns the request in UCI form, e.g. "e2e4" or "e7e8q".
func (m MoveRequest) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// Flags are the terminal conditions reported for the position after a move.
type Flags struct {
	Checkmate            bool
	Stalemate            bool
	Repetition           bool
	InsufficientMaterial bool
	OtherDraw            bool
}

// Terminal reports whether any terminal condition is set.
func (f Flags) Terminal() bool {
	return f.Checkmate || f.Stalemate || f.Repetition || f.InsufficientMaterial || f.OtherDraw
}

// Verdict is the engine's full answer for one candidate move.
type Verdict struct {
	Legal bool
	FEN   string
	SAN   string
	Flags Flags
}

// Engine validates and applies moves. Implementations are pure over the given
// start position and move history: no state is retained across calls. The
// history is the full UCI move list from start; it is what makes repetition
// detection possible.
type Engine interface {
	StartingPosition() string
	Apply(start string, history []string, req MoveRequest) (Verdict, error)
}
