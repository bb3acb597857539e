package rules

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

type chessEngine struct{}

// NewEngine returns the standard-chess rules engine.
func NewEngine() Engine { return chessEngine{} }

func (chessEngine) StartingPosition() string {
	return nchess.NewGame().FEN()
}

// Apply rebuilds the game from start by replaying history, then validates and
// applies the candidate move. The replay keeps position history alive, so
// repetition counts across the whole game rather than one position deep.
// An unparseable or illegal move yields Verdict{Legal: false} with a nil error;
// errors are reserved for broken positions and corrupted histories.
func (chessEngine) Apply(start string, history []string, req MoveRequest) (Verdict, error) {
	fenOpt, err := nchess.FEN(start)
	if err != nil {
		return Verdict{}, fmt.Errorf("bad position %q: %w", start, err)
	}
	game := nchess.NewGame(fenOpt)
	for _, past := range history {
		if err := game.PushNotationMove(past, nchess.UCINotation{}, nil); err != nil {
			return Verdict{}, fmt.Errorf("bad history move %q: %w", past, err)
		}
	}
	pos := game.Position()

	uci := req.UCI()
	if len(uci) < 4 {
		return Verdict{}, nil
	}

	notation := nchess.UCINotation{}
	mv, derr := notation.Decode(pos, uci)
	if derr != nil && req.Promotion == "" {
		// 원본 클라이언트는 승급을 항상 퀸으로 보냈다; 생략된 경우 퀸으로 보정
		mv, derr = notation.Decode(pos, uci+"q")
	}
	if derr != nil {
		return Verdict{}, nil
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return Verdict{}, nil
	}

	return Verdict{
		Legal: true,
		FEN:   game.FEN(),
		SAN:   san,
		Flags: flagsFrom(game),
	}, nil
}

func flagsFrom(game *nchess.Game) Flags {
	if game.Outcome() == nchess.NoOutcome {
		// Threefold repetition and the fifty-move rule end the game the
		// moment they become eligible, no claim step.
		for _, m := range game.EligibleDraws() {
			switch m {
			case nchess.ThreefoldRepetition:
				return Flags{Repetition: true}
			case nchess.FiftyMoveRule:
				return Flags{OtherDraw: true}
			}
		}
		return Flags{}
	}
	switch game.Method() {
	case nchess.Checkmate:
		return Flags{Checkmate: true}
	case nchess.Stalemate:
		return Flags{Stalemate: true}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return Flags{Repetition: true}
	case nchess.InsufficientMaterial:
		return Flags{InsufficientMaterial: true}
	default:
		return Flags{OtherDraw: true}
	}
}
