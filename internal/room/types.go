package room

import "github.com/park285/cheese-arena/internal/rules"

// Color identifies a playing seat. The first connection to join a room plays
// White, the second plays Black; assignment never changes afterwards.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing seat.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Label returns the display form used in user-facing messages.
func (c Color) Label() string {
	if c == White {
		return "White"
	}
	return "Black"
}

// Status represents a room's lifecycle state.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusOver   Status = "OVER"
)

// Reason is the single recorded cause of a finished match. Together with the
// winner seat it forms the room's terminal state; it is written exactly once.
type Reason string

const (
	ReasonCheckmate    Reason = "checkmate"
	ReasonStalemate    Reason = "stalemate"
	ReasonRepetition   Reason = "repetition"
	ReasonInsufficient Reason = "insufficient_material"
	ReasonDrawOther    Reason = "draw"
	ReasonResignation  Reason = "resignation"
	ReasonTimeout      Reason = "timeout"
	ReasonDisconnect   Reason = "disconnect"
)

func (r Reason) catalogKey() string {
	switch r {
	case ReasonCheckmate:
		return "over.checkmate"
	case ReasonStalemate:
		return "over.stalemate"
	case ReasonRepetition:
		return "over.repetition"
	case ReasonInsufficient:
		return "over.insufficient"
	case ReasonResignation:
		return "over.resignation"
	case ReasonTimeout:
		return "over.timeout"
	case ReasonDisconnect:
		return "over.disconnect"
	default:
		return "over.other"
	}
}

// Client is a connection attached to a room. Send must never block: slow
// consumers drop events instead of stalling room operations.
type Client interface {
	ID() string
	Send(ev Event)
}

// Event is one protocol message pushed to a client.
type Event struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// Outbound event payloads.

type RolePayload struct {
	Color Color `json:"color"`
}

type StatePayload struct {
	RoomID       string   `json:"room_id"`
	FEN          string   `json:"fen"`
	Turn         Color    `json:"turn"`
	Status       Status   `json:"status"`
	MovesUCI     []string `json:"moves_uci"`
	MovesSAN     []string `json:"moves_san"`
	WhiteClockMS int64    `json:"white_clock_ms"`
	BlackClockMS int64    `json:"black_clock_ms"`
	Spectators   int      `json:"spectators"`
}

type MovePayload struct {
	Color     Color  `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
}

type OverPayload struct {
	Reason  Reason `json:"reason"`
	Winner  Color  `json:"winner,omitempty"`
	Message string `json:"message"`
}

type NoticePayload struct {
	Text string `json:"text"`
}

// reasonFromFlags maps engine terminal flags to the recorded cause. The
// checkmate winner is the seat that just moved, never the post-move turn.
func reasonFromFlags(f rules.Flags, mover Color) (Reason, Color) {
	switch {
	case f.Checkmate:
		return ReasonCheckmate, mover
	case f.Stalemate:
		return ReasonStalemate, ""
	case f.Repetition:
		return ReasonRepetition, ""
	case f.InsufficientMaterial:
		return ReasonInsufficient, ""
	default:
		return ReasonDrawOther, ""
	}
}
