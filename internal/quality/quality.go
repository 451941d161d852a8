// Package quality measures how well an evaluator predicts a packed dataset.
package quality

import (
	"math"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/ml"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// IEvaluator returns a score in centipawns for the side to move.
type IEvaluator interface {
	Evaluate(stm, ntm []int16) float64
}

type Report struct {
	Count   int
	AbsCost float64
	MseCost float64
}

var errEnough = errors.New("enough positions")

// RunQuality compares the win probability of evaluator's score with the blended
// target of at most maxSize positions of path.
func RunQuality(evaluator IEvaluator, path string, evalScale, wdl float32, maxSize int) (Report, error) {
	var sum, sumSq float64
	var count int
	var pieces []chess768.Piece
	var stm, ntm []int16

	var err = dataset.WalkFile(path, func(r *dataset.Record) error {
		if maxSize > 0 && count >= maxSize {
			return errEnough
		}
		pieces = r.AppendPieces(pieces[:0])
		var err error
		stm, ntm, err = chess768.Encode(pieces, stm[:0], ntm[:0])
		if err != nil {
			return err
		}
		var score = evaluator.Evaluate(stm, ntm)
		var prob = float64(ml.Sigmoid(float32(score) / evalScale))
		var target = float64(ml.BlendTarget(r.GameResult(), int(r.Score), evalScale, wdl))
		var x = prob - target
		sum += math.Abs(x)
		sumSq += x * x
		count++
		return nil
	})
	if err != nil && !errors.Is(err, errEnough) {
		return Report{}, err
	}
	if count == 0 {
		return Report{}, errors.Errorf("no positions in %v", path)
	}
	var report = Report{
		Count:   count,
		AbsCost: sum / float64(count),
		MseCost: sumSq / float64(count),
	}
	klog.Infof("%v positions, abs cost: %f, mse cost: %f", report.Count, report.AbsCost, report.MseCost)
	return report, nil
}
