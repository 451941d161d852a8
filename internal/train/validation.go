package train

import (
	"sync"
	"sync/atomic"

	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/pkg/errors"
)

var errValidationFull = errors.New("validation set full")

// LoadValidation reads at most maxSize records from path.
func LoadValidation(path string, maxSize int) ([]dataset.Record, error) {
	var records []dataset.Record
	var err = dataset.WalkFile(path, func(r *dataset.Record) error {
		if len(records) >= maxSize {
			return errValidationFull
		}
		records = append(records, *r)
		return nil
	})
	if err != nil && !errors.Is(err, errValidationFull) {
		return nil, err
	}
	return records, nil
}

// SetValidation makes the trainer log the loss on records after every superbatch.
func (t *Trainer) SetValidation(records []dataset.Record) {
	t.validation = records
}

func (t *Trainer) validationCost(evalScale, wdl float32) (float64, error) {
	var samples, err = prepareSamples(t.validation, evalScale, wdl)
	if err != nil {
		return 0, err
	}
	var cost float64
	err = t.graph.Params.Read(func() error {
		cost = t.calcAverageCost(samples)
		return nil
	})
	return cost, err
}

func (t *Trainer) calcAverageCost(samples []domain.Sample) float64 {
	var index int32 = -1
	var wg = &sync.WaitGroup{}
	var totalCost float64
	var mu = &sync.Mutex{}
	for i := range t.threads {
		wg.Add(1)
		go func(th *network.Thread) {
			defer wg.Done()
			var localCost float64
			for {
				var i = int(atomic.AddInt32(&index, 1))
				if i >= len(samples) {
					break
				}
				localCost += float64(th.CalcCost(&samples[i], t.cost))
			}
			mu.Lock()
			totalCost += localCost
			mu.Unlock()
		}(t.threads[i])
	}
	wg.Wait()
	return totalCost / float64(len(samples))
}
