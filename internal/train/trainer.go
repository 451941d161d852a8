// Package train runs the superbatch loop: it streams samples, runs forward and
// backward passes on worker threads, applies AdamW and writes checkpoints.
package train

import (
	"context"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/ml"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/petrelchess/petrelnet/internal/quant"
	"github.com/petrelchess/petrelnet/internal/schedule"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

type Settings struct {
	Threads         int
	BatchQueueSize  int
	OutputDirectory string
}

func (s Settings) Validate() error {
	if s.Threads < 1 {
		return domain.ConfigErrorf("threads must be at least 1, got %v", s.Threads)
	}
	if s.BatchQueueSize < 1 {
		return domain.ConfigErrorf("batch queue size must be at least 1, got %v", s.BatchQueueSize)
	}
	if s.OutputDirectory == "" {
		return domain.ConfigErrorf("empty output directory")
	}
	return nil
}

type DataLoader interface {
	Validate() error
	Stream(ctx context.Context, batchSize, batches int, out chan<- []dataset.Record) error
}

type Trainer struct {
	graph      *network.Graph
	format     quant.Format
	cost       ml.IModelCost
	optimiser  ml.AdamW
	gradients  []ml.Gradients
	threads    []*network.Thread
	validation []dataset.Record

	// afterBatch is called after every optimiser step.
	afterBatch func(superbatch, batch int, loss float64)
}

func NewTrainer(graph *network.Graph, format quant.Format, cost ml.IModelCost, optimiser ml.AdamW) *Trainer {
	var t = &Trainer{
		graph:     graph,
		format:    format,
		cost:      cost,
		optimiser: optimiser,
	}
	for _, p := range graph.Params.All() {
		t.gradients = append(t.gradients, ml.NewGradients(p.Size()))
	}
	return t
}

// Run trains from sched.Steps.StartSuperbatch to EndSuperbatch. Configuration and
// data files are checked before the first step. When ctx is cancelled the batch in
// flight completes, the current state is checkpointed and ctx.Err() is returned.
func (t *Trainer) Run(
	ctx context.Context,
	sched *schedule.TrainingSchedule,
	settings Settings,
	loader DataLoader,
) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := t.format.Validate(); err != nil {
		return err
	}
	if err := loader.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(settings.OutputDirectory, os.ModePerm); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	klog.Infof("Train started: %v", sched)
	defer klog.Info("Train finished")

	t.threads = make([]*network.Thread, settings.Threads)
	for i := range t.threads {
		t.threads[i] = t.graph.NewThread()
	}

	var pipelineCtx, cancel = context.WithCancel(ctx)
	defer cancel()
	var g, gctx = errgroup.WithContext(pipelineCtx)
	var batches = startPipeline(gctx, g, sched, settings, loader)

	var err = t.consume(ctx, gctx, batches, sched, settings)
	if err != nil {
		cancel()
	}
	var pipelineErr = g.Wait()
	if err != nil {
		return err
	}
	return pipelineErr
}

func (t *Trainer) consume(
	ctx context.Context,
	pipelineCtx context.Context,
	batches <-chan chan []domain.Sample,
	sched *schedule.TrainingSchedule,
	settings Settings,
) error {
	var steps = sched.Steps
	var lr float32
	var superbatchLoss float64
	var superbatchStart time.Time
	var lastSuperbatch int
	var unsaved bool

	for step := 0; step < sched.TotalSteps(); step++ {
		var superbatch = steps.StartSuperbatch + step/steps.BatchesPerSuperbatch
		var batch = step%steps.BatchesPerSuperbatch + 1

		if ctx.Err() != nil {
			return t.interrupt(ctx, sched, settings, lastSuperbatch, unsaved)
		}
		if batch == 1 {
			lr = sched.LR(superbatch)
			superbatchLoss = 0
			superbatchStart = time.Now()
		}

		var samples, ok = receive(pipelineCtx, batches)
		if !ok {
			if ctx.Err() != nil {
				return t.interrupt(ctx, sched, settings, lastSuperbatch, unsaved)
			}
			// the pipeline failed; its error is returned by the group
			return nil
		}

		var loss, err = t.trainBatch(samples, lr)
		if err != nil {
			return errors.WithMessagef(err, "superbatch %v batch %v", superbatch, batch)
		}
		superbatchLoss += loss
		lastSuperbatch = superbatch
		unsaved = true
		if t.afterBatch != nil {
			t.afterBatch(superbatch, batch, loss)
		}
		klog.V(2).Infof("superbatch %v batch %v loss %.6f", superbatch, batch, loss)

		if batch == steps.BatchesPerSuperbatch {
			var elapsed = time.Since(superbatchStart)
			klog.Infof("Finished superbatch %v: loss %.6f, lr %v, wdl %v, %.0f pos/sec",
				superbatch, superbatchLoss/float64(steps.BatchesPerSuperbatch),
				lr, sched.WDL(superbatch),
				float64(steps.BatchesPerSuperbatch*steps.BatchSize)/elapsed.Seconds())
			if len(t.validation) != 0 {
				var validationCost, err = t.validationCost(sched.EvalScale, sched.WDL(superbatch))
				if err != nil {
					return err
				}
				klog.Infof("Current validation cost is: %f", validationCost)
			}
			if sched.ShouldCheckpoint(superbatch) || superbatch == steps.EndSuperbatch {
				if err := t.SaveCheckpoint(settings.OutputDirectory, sched.NetID, superbatch); err != nil {
					return err
				}
				unsaved = false
			}
		}
	}
	return nil
}

func (t *Trainer) interrupt(
	ctx context.Context,
	sched *schedule.TrainingSchedule,
	settings Settings,
	superbatch int,
	unsaved bool,
) error {
	klog.Warningf("Training interrupted in superbatch %v", superbatch)
	if unsaved {
		if err := t.SaveCheckpoint(settings.OutputDirectory, sched.NetID, superbatch); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// trainBatch accumulates the gradients of samples on all threads, then takes
// one optimiser step with the mean gradient. It returns the mean loss.
func (t *Trainer) trainBatch(samples []domain.Sample, lr float32) (float64, error) {
	var loss float64
	var err = t.graph.Params.Read(func() error {
		var index int32 = -1
		var costs = make([]float64, len(t.threads))
		var wg = &sync.WaitGroup{}
		for i := range t.threads {
			wg.Add(1)
			go func(th *network.Thread, i int) {
				defer wg.Done()
				var localCost float64
				for {
					var n = int(atomic.AddInt32(&index, 1))
					if n >= len(samples) {
						break
					}
					localCost += float64(th.Train(&samples[n], t.cost))
				}
				costs[i] = localCost
			}(t.threads[i], i)
		}
		wg.Wait()

		var totalCost float64
		for _, c := range costs {
			totalCost += c
		}
		loss = totalCost / float64(len(samples))
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return errors.Wrapf(domain.ErrNumericInstability, "batch loss %v", loss)
		}
		return nil
	})
	if err != nil {
		return loss, err
	}
	if err := t.applyGradients(lr, 1/float32(len(samples))); err != nil {
		return loss, err
	}
	return loss, nil
}

// applyGradients reduces the thread buffers into the mean gradient and runs the
// optimiser. Weights are left untouched when any gradient is not finite.
func (t *Trainer) applyGradients(lr, scale float32) error {
	var params = t.graph.Params.All()
	for pi, p := range params {
		for _, th := range t.threads {
			t.gradients[pi].AddScaled(th.Gradients()[pi], scale)
		}
		if !t.gradients[pi].Finite() {
			return errors.Wrapf(domain.ErrNumericInstability, "gradient of %v", p.Name)
		}
	}
	t.graph.Params.Update(func() {
		for pi, p := range params {
			t.gradients[pi].Apply(p.Values, &t.optimiser, lr)
		}
	})
	return nil
}
