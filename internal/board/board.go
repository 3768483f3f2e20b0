// Package board wraps the chess rules engine behind an immutable position
// value. Every application of a move yields a new Position; callers never
// share mutable engine state.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove = errors.New("illegal move for position")
	ErrBadFEN      = errors.New("malformed FEN position")
)

// Position is an immutable board state identified by its FEN string.
// The zero value is not valid; obtain one via Parse or Start.
type Position struct {
	fen string
}

// Start returns the standard initial position.
func Start() Position {
	return Position{fen: nchess.NewGame().FEN()}
}

// Parse validates a FEN string and returns the corresponding position.
// The FEN is normalized through the rules engine so equal positions
// compare equal.
func Parse(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return Position{}, ErrBadFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	return Position{fen: nchess.NewGame(opt).FEN()}, nil
}

// FEN returns the position's FEN string.
func (p Position) FEN() string { return p.fen }

// IsZero reports whether p was never initialized.
func (p Position) IsZero() bool { return p.fen == "" }

// Apply attempts moveText (SAN, with UCI fallback) against the position.
// On success it returns the resulting position and the canonical SAN of
// the move actually played. Illegal or unparseable moves return
// ErrIllegalMove.
func (p Position) Apply(moveText string) (Position, string, error) {
	moveText = strings.TrimSpace(moveText)
	if moveText == "" || p.IsZero() {
		return Position{}, "", ErrIllegalMove
	}
	game, err := gameFrom(p.fen)
	if err != nil {
		return Position{}, "", err
	}
	pos := game.Position()

	notationSAN := nchess.AlgebraicNotation{}
	move, err := notationSAN.Decode(pos, moveText)
	if err != nil {
		move, err = nchess.UCINotation{}.Decode(pos, strings.ToLower(moveText))
		if err != nil {
			return Position{}, "", ErrIllegalMove
		}
	}
	if err := game.Move(move, nil); err != nil {
		return Position{}, "", ErrIllegalMove
	}
	return Position{fen: game.FEN()}, notationSAN.Encode(pos, move), nil
}

// SideToMove returns the engine's token for the color to move.
func (p Position) SideToMove() string {
	game, err := gameFrom(p.fen)
	if err != nil {
		return ""
	}
	return strings.ToLower(game.Position().Turn().String())
}

func gameFrom(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	return nchess.NewGame(opt), nil
}
