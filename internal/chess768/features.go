// Package chess768 maps a position, seen from the side to move, to the two sparse
// 768-wide inputs of the network: one for the side to move and one for the opponent.
package chess768

import "github.com/pkg/errors"

const (
	InputSize = 64 * 6 * 2
	// a legal position never has more than 32 pieces
	MaxActive = 32
)

const (
	Pawn = iota
	Knight
	Bishop
	Rook
	Queen
	King
)

const (
	Ours = iota
	Theirs
)

// Piece is a piece on a board that is already oriented for the side to move.
type Piece struct {
	Square int
	Type   int
	Colour int
}

// Index returns the input index of a piece as seen by its own colour's perspective table.
func Index(colour, pieceType, square int) int16 {
	return int16(384*colour + 64*pieceType + square)
}

// Flip converts a side-to-move index into the index the opponent sees:
// colours swap and the board is mirrored vertically.
func Flip(index int16) int16 {
	var colour = int(index) / 384
	var pieceType = int(index) % 384 / 64
	var square = int(index) % 64
	return Index(colour^1, pieceType, square^56)
}

// Encode appends the active indices of both perspectives.
func Encode(pieces []Piece, stm, ntm []int16) ([]int16, []int16, error) {
	if len(pieces) > MaxActive {
		return stm, ntm, errors.Errorf("too many pieces %v", len(pieces))
	}
	for _, p := range pieces {
		if p.Square < 0 || p.Square >= 64 ||
			p.Type < Pawn || p.Type > King ||
			(p.Colour != Ours && p.Colour != Theirs) {
			return stm, ntm, errors.Errorf("bad piece %+v", p)
		}
		var index = Index(p.Colour, p.Type, p.Square)
		stm = append(stm, index)
		ntm = append(ntm, Flip(index))
	}
	return stm, ntm, nil
}
