package dataset

import (
	"encoding/binary"
	"math/bits"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/domain"
)

// RecordSize is the size of one packed position on disk.
const RecordSize = 32

// Record is one training position, stored from the side to move's point of view.
//
// Layout (little-endian):
//
//	occupancy  uint64    bit per occupied square, a1 = bit 0
//	pieces     [16]byte  one nibble per occupied square in occupancy order:
//	                     bits 0-2 piece type (pawn..king), bit 3 set for the opponent
//	score      int16     search score in centipawns
//	result     uint8     0 loss, 1 draw, 2 win
//	kingSq     uint8     our king square
//	oppKingSq  uint8     opponent king square, mirrored to the opponent's view
//	extra      [3]byte   extra[0] bit 0: black was to move in the source position
type Record struct {
	Occupancy uint64
	Pieces    [16]byte
	Score     int16
	Result    uint8
	KingSq    uint8
	OppKingSq uint8
	Extra     [3]byte
}

func (r *Record) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], r.Occupancy)
	copy(buf[8:24], r.Pieces[:])
	binary.LittleEndian.PutUint16(buf[24:], uint16(r.Score))
	buf[26] = r.Result
	buf[27] = r.KingSq
	buf[28] = r.OppKingSq
	copy(buf[29:32], r.Extra[:])
}

func (r *Record) Unmarshal(buf []byte) error {
	r.Occupancy = binary.LittleEndian.Uint64(buf[0:])
	copy(r.Pieces[:], buf[8:24])
	r.Score = int16(binary.LittleEndian.Uint16(buf[24:]))
	r.Result = buf[26]
	r.KingSq = buf[27]
	r.OppKingSq = buf[28]
	copy(r.Extra[:], buf[29:32])
	if r.Result > 2 {
		return domain.DataSourceErrorf("bad result %v", r.Result)
	}
	if bits.OnesCount64(r.Occupancy) > chess768.MaxActive {
		return domain.DataSourceErrorf("too many pieces %v", bits.OnesCount64(r.Occupancy))
	}
	return nil
}

// GameResult is 0, 0.5 or 1 for the side to move.
func (r *Record) GameResult() float32 {
	return float32(r.Result) / 2
}

func (r *Record) BlackToMove() bool {
	return r.Extra[0]&1 != 0
}

// AppendPieces decodes the packed board.
func (r *Record) AppendPieces(pieces []chess768.Piece) []chess768.Piece {
	var i int
	for x := r.Occupancy; x != 0; x &= x - 1 {
		var sq = bits.TrailingZeros64(x)
		var nibble = int(r.Pieces[i/2]>>(4*(i&1))) & 0xF
		pieces = append(pieces, chess768.Piece{
			Square: sq,
			Type:   nibble & 7,
			Colour: nibble >> 3,
		})
		i++
	}
	return pieces
}

// NewRecord packs pieces that are already oriented for the side to move.
func NewRecord(pieces []chess768.Piece, score int16, result uint8, blackToMove bool) (Record, error) {
	var r = Record{Score: score, Result: result}
	if result > 2 {
		return r, domain.DataSourceErrorf("bad result %v", result)
	}
	var byType [64]int
	var occupied [64]bool
	for _, p := range pieces {
		if p.Square < 0 || p.Square >= 64 || occupied[p.Square] {
			return r, domain.DataSourceErrorf("bad square %v", p.Square)
		}
		occupied[p.Square] = true
		byType[p.Square] = p.Type | p.Colour<<3
		r.Occupancy |= 1 << uint(p.Square)
		if p.Type == chess768.King {
			if p.Colour == chess768.Ours {
				r.KingSq = uint8(p.Square)
			} else {
				r.OppKingSq = uint8(p.Square ^ 56)
			}
		}
	}
	if len(pieces) > chess768.MaxActive {
		return r, domain.DataSourceErrorf("too many pieces %v", len(pieces))
	}
	var i int
	for x := r.Occupancy; x != 0; x &= x - 1 {
		var sq = bits.TrailingZeros64(x)
		r.Pieces[i/2] |= byte(byType[sq] << (4 * (i & 1)))
		i++
	}
	if blackToMove {
		r.Extra[0] |= 1
	}
	return r, nil
}
