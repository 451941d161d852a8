package dataset

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
)

// TextDatasetProvider reads positions from a text file, one per line, in either format:
//
//	fen;score;result     score in centipawns and result (1, 0.5, 0) for white
//	fen "1-0"            zurichess style, result only
type TextDatasetProvider struct {
	FilePath string
}

func (dp *TextDatasetProvider) Load(
	ctx context.Context,
	dataset chan<- domain.DatasetItem,
) error {
	file, err := os.Open(dp.FilePath)
	if err != nil {
		return domain.DataSourceErrorf("%v", err)
	}
	defer file.Close()

	var scanner = bufio.NewScanner(file)
	var lineNumber int
	for scanner.Scan() {
		lineNumber++
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		item, err := ParseLine(line)
		if err != nil {
			return domain.DataSourceErrorf("%v:%v: %v", dp.FilePath, lineNumber, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dataset <- item:
		}
	}
	return scanner.Err()
}

func ParseLine(s string) (domain.DatasetItem, error) {
	if index := strings.Index(s, "\""); index >= 0 {
		var fen = strings.TrimSpace(s[:index])
		var strScore = s[index+1:]
		var result float64
		if strings.HasPrefix(strScore, "1/2-1/2") {
			result = 0.5
		} else if strings.HasPrefix(strScore, "1-0") {
			result = 1.0
		} else if strings.HasPrefix(strScore, "0-1") {
			result = 0.0
		} else {
			return domain.DatasetItem{}, errors.Errorf("bad result %v", s)
		}
		return domain.DatasetItem{Fen: fen, Result: result}, nil
	}

	var fields = strings.SplitN(s, ";", 3)
	if len(fields) < 3 {
		return domain.DatasetItem{}, errors.Errorf("bad line %s", s)
	}
	score, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return domain.DatasetItem{}, errors.Wrapf(err, "bad score %s", s)
	}
	result, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return domain.DatasetItem{}, errors.Wrapf(err, "bad result %s", s)
	}
	if result != 0 && result != 0.5 && result != 1 {
		return domain.DatasetItem{}, errors.Errorf("bad result %v", result)
	}
	return domain.DatasetItem{
		Fen:    strings.TrimSpace(fields[0]),
		Score:  score,
		Result: result,
	}, nil
}

// FromItem orients the position for the side to move and packs it.
// Scores beyond the int16 range are clamped.
func FromItem(item domain.DatasetItem) (Record, error) {
	pieces, whiteMove, err := parseFen(item.Fen)
	if err != nil {
		return Record{}, err
	}
	var score = item.Score
	var result = item.Result
	if !whiteMove {
		for i := range pieces {
			pieces[i].Square ^= 56
			pieces[i].Colour ^= 1
		}
		score = -score
		result = 1 - result
	}
	score = min(max(score, -32767), 32767)
	return NewRecord(pieces, int16(score), uint8(2*result), !whiteMove)
}

// parseFen reads the piece placement and side to move. Colour is Ours for white.
func parseFen(fen string) ([]chess768.Piece, bool, error) {
	var fields = strings.Fields(fen)
	if len(fields) < 2 {
		return nil, false, errors.Errorf("bad fen %v", fen)
	}
	var whiteMove bool
	switch fields[1] {
	case "w":
		whiteMove = true
	case "b":
		whiteMove = false
	default:
		return nil, false, errors.Errorf("bad side to move %v", fen)
	}
	var pieces []chess768.Piece
	var rank, file = 7, 0
	for _, ch := range fields[0] {
		switch {
		case ch == '/':
			rank--
			file = 0
		case ch >= '1' && ch <= '8':
			file += int(ch - '0')
			if file > 8 {
				return nil, false, errors.Errorf("bad fen %v", fen)
			}
		default:
			var index = strings.IndexRune("PNBRQKpnbrqk", ch)
			if index < 0 || file > 7 || rank < 0 {
				return nil, false, errors.Errorf("bad fen %v", fen)
			}
			pieces = append(pieces, chess768.Piece{
				Square: rank*8 + file,
				Type:   index % 6,
				Colour: index / 6,
			})
			file++
		}
	}
	if rank != 0 {
		return nil, false, errors.Errorf("bad fen %v", fen)
	}
	return pieces, whiteMove, nil
}
