package train

import (
	"context"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/ml"
	"github.com/petrelchess/petrelnet/internal/schedule"
	"golang.org/x/sync/errgroup"
)

type batchJob struct {
	records   []dataset.Record
	evalScale float32
	wdl       float32
	result    chan []domain.Sample
}

// startPipeline reads batches from the loader and decodes them on settings.Threads workers.
// Decoded batches come out of the returned channel in the order the loader produced them,
// at most settings.BatchQueueSize ahead of the consumer.
func startPipeline(
	ctx context.Context,
	g *errgroup.Group,
	sched *schedule.TrainingSchedule,
	settings Settings,
	loader DataLoader,
) <-chan chan []domain.Sample {
	var raw = make(chan []dataset.Record, settings.BatchQueueSize)
	var jobs = make(chan batchJob, settings.Threads)
	var ordered = make(chan chan []domain.Sample, settings.BatchQueueSize)

	g.Go(func() error {
		defer close(raw)
		return loader.Stream(ctx, sched.Steps.BatchSize, sched.TotalSteps(), raw)
	})

	g.Go(func() error {
		defer close(ordered)
		defer close(jobs)
		var step int
		for records := range raw {
			var superbatch = sched.Steps.StartSuperbatch + step/sched.Steps.BatchesPerSuperbatch
			var job = batchJob{
				records:   records,
				evalScale: sched.EvalScale,
				wdl:       sched.WDL(superbatch),
				result:    make(chan []domain.Sample, 1),
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- job:
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ordered <- job.result:
			}
			step++
		}
		return nil
	})

	for i := 0; i < settings.Threads; i++ {
		g.Go(func() error {
			for job := range jobs {
				var samples, err = prepareSamples(job.records, job.evalScale, job.wdl)
				if err != nil {
					return err
				}
				job.result <- samples
			}
			return nil
		})
	}

	return ordered
}

// prepareSamples encodes both perspectives of every record and blends its target.
func prepareSamples(records []dataset.Record, evalScale, wdl float32) ([]domain.Sample, error) {
	const stride = 2 * chess768.MaxActive
	var samples = make([]domain.Sample, len(records))
	var indices = make([]int16, stride*len(records))
	var pieces = make([]chess768.Piece, 0, chess768.MaxActive)
	for i := range records {
		var r = &records[i]
		pieces = r.AppendPieces(pieces[:0])
		var stm = indices[i*stride : i*stride : i*stride+chess768.MaxActive]
		var ntm = indices[i*stride+chess768.MaxActive : i*stride+chess768.MaxActive : (i+1)*stride]
		stm, ntm, err := chess768.Encode(pieces, stm, ntm)
		if err != nil {
			return nil, domain.DataSourceErrorf("batch record %v: %v", i, err)
		}
		samples[i] = domain.Sample{
			Stm:    stm,
			Ntm:    ntm,
			Target: ml.BlendTarget(r.GameResult(), int(r.Score), evalScale, wdl),
		}
	}
	return samples, nil
}

// receive waits for the next decoded batch. It reports false when the pipeline
// is exhausted or stopped.
func receive(ctx context.Context, batches <-chan chan []domain.Sample) ([]domain.Sample, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case result, ok := <-batches:
		if !ok {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case samples := <-result:
			return samples, true
		}
	}
}
