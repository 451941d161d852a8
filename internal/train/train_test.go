package train

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/ml"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/petrelchess/petrelnet/internal/quant"
	"github.com/petrelchess/petrelnet/internal/schedule"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hidden = 8

var positions = []domain.DatasetItem{
	{Fen: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Score: 30, Result: 0.5},
	{Fen: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", Score: 40, Result: 0.5},
	{Fen: "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", Score: 900, Result: 1},
	{Fen: "4k3/8/8/8/8/8/8/3QK3 b - - 0 1", Score: 1000, Result: 1},
	{Fen: "3qk3/8/8/8/8/8/8/4K3 w - - 0 1", Score: -950, Result: 0},
	{Fen: "4k3/pppp4/8/8/8/8/8/4K3 w - - 0 1", Score: -400, Result: 0},
	{Fen: "4k3/8/8/8/8/8/PPPP4/4K3 b - - 0 1", Score: 350, Result: 1},
	{Fen: "4k3/8/8/8/8/8/8/4K3 w - - 0 1", Score: 0, Result: 0.5},
}

func writeDataset(t *testing.T) string {
	var path = filepath.Join(t.TempDir(), "data.bin")
	var f, err = os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	var w = dataset.NewWriter(f)
	for _, item := range positions {
		r, err := dataset.FromItem(item)
		require.NoError(t, err)
		require.NoError(t, w.Write(&r))
	}
	require.NoError(t, w.Flush())
	return path
}

func newGraph(t *testing.T) *network.Graph {
	var cfg = network.DefaultConfig()
	cfg.HiddenSize = hidden
	cfg.Seed = 1
	var g, err = network.Build(cfg)
	require.NoError(t, err)
	return g
}

func newSchedule(start, end, bps, saveRate int, lr float32) *schedule.TrainingSchedule {
	return &schedule.TrainingSchedule{
		NetID:     "test",
		EvalScale: 400,
		Steps: schedule.TrainingSteps{
			BatchSize:            4,
			BatchesPerSuperbatch: bps,
			StartSuperbatch:      start,
			EndSuperbatch:        end,
		},
		LRScheduler:  &schedule.ConstantLR{Value: lr},
		WDLScheduler: &schedule.ConstantWDL{Value: 0.5},
		SaveRate:     saveRate,
	}
}

func newTrainer(g *network.Graph) *Trainer {
	return NewTrainer(g, quant.DefaultFormat(256, 64), &ml.PowerErrorCost{Power: 2.6}, ml.DefaultAdamW())
}

func settings(dir string) Settings {
	return Settings{Threads: 2, BatchQueueSize: 2, OutputDirectory: dir}
}

func TestRunWritesCheckpoints(t *testing.T) {
	var data = writeDataset(t)
	var out = t.TempDir()
	var g = newGraph(t)
	var tr = newTrainer(g)
	var steps int
	tr.afterBatch = func(superbatch, batch int, loss float64) { steps++ }

	var err = tr.Run(context.Background(), newSchedule(1, 3, 2, 2, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(data))
	require.NoError(t, err)
	assert.Equal(t, 6, steps)

	for superbatch, want := range map[int]bool{1: true, 2: false, 3: true} {
		var _, err = os.Stat(CheckpointPath(out, "test", superbatch))
		assert.Equal(t, want, err == nil, "superbatch %v", superbatch)
	}

	var path = CheckpointPath(out, "test", 3)
	info, err := os.Stat(filepath.Join(path, QuantisedFileName))
	require.NoError(t, err)
	// (768*8 + 8 + 16 + 1) int16 values padded to 64 bytes
	assert.Equal(t, int64(12352), info.Size())

	f, err := os.Open(filepath.Join(path, QuantisedFileName))
	require.NoError(t, err)
	defer f.Close()
	_, err = network.LoadQuantised(f, g.Config, quant.DefaultFormat(256, 64))
	require.NoError(t, err)

	var resumed = newTrainer(newGraph(t))
	superbatch, err := resumed.Resume(filepath.Join(path, RawFileName))
	require.NoError(t, err)
	assert.Equal(t, 3, superbatch)
	for i, p := range g.Params.All() {
		assert.Equal(t, p.Values, resumed.graph.Params.All()[i].Values, p.Name)
	}
}

func TestZeroLearningRateKeepsWeights(t *testing.T) {
	var g = newGraph(t)
	var before [][]float32
	for _, p := range g.Params.All() {
		before = append(before, append([]float32(nil), p.Values...))
	}
	var err = newTrainer(g).Run(context.Background(), newSchedule(1, 2, 3, 1, 0), settings(t.TempDir()),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	require.NoError(t, err)
	for i, p := range g.Params.All() {
		assert.Equal(t, before[i], p.Values, p.Name)
	}
}

func TestLossDecreases(t *testing.T) {
	var tr = newTrainer(newGraph(t))
	var first, last float64
	tr.afterBatch = func(superbatch, batch int, loss float64) {
		if superbatch == 1 {
			first += loss
		}
		if superbatch == 10 {
			last += loss
		}
	}
	var err = tr.Run(context.Background(), newSchedule(1, 10, 10, 100, 0.01), settings(t.TempDir()),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	require.NoError(t, err)
	assert.Less(t, last, first)
}

func TestStartSuperbatchOffsetsCheckpoints(t *testing.T) {
	var out = t.TempDir()
	var err = newTrainer(newGraph(t)).Run(context.Background(), newSchedule(5, 7, 1, 2, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	require.NoError(t, err)
	for superbatch, want := range map[int]bool{5: true, 6: false, 7: true} {
		var _, err = os.Stat(CheckpointPath(out, "test", superbatch))
		assert.Equal(t, want, err == nil, "superbatch %v", superbatch)
	}
}

func TestInterruptSavesCheckpoint(t *testing.T) {
	var out = t.TempDir()
	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var tr = newTrainer(newGraph(t))
	tr.afterBatch = func(superbatch, batch int, loss float64) {
		if superbatch == 2 && batch == 1 {
			cancel()
		}
	}
	var err = tr.Run(ctx, newSchedule(1, 5, 3, 10, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	assert.ErrorIs(t, err, context.Canceled)

	for superbatch, want := range map[int]bool{1: true, 2: true, 3: false} {
		var _, err = os.Stat(CheckpointPath(out, "test", superbatch))
		assert.Equal(t, want, err == nil, "superbatch %v", superbatch)
	}
	_, err = os.Stat(filepath.Join(CheckpointPath(out, "test", 2), QuantisedFileName))
	assert.NoError(t, err)
}

func TestNonFiniteLossStopsTraining(t *testing.T) {
	var g = newGraph(t)
	g.L1.Biases.Values[0] = float32(math.NaN())
	var err = newTrainer(g).Run(context.Background(), newSchedule(1, 2, 2, 1, 0.001), settings(t.TempDir()),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	assert.True(t, errors.Is(err, domain.ErrNumericInstability), "%v", err)
}

// infiniteGradientCost has a finite loss but an infinite slope.
type infiniteGradientCost struct{}

func (infiniteGradientCost) Cost(output, target float32) float32 { return 0.1 }

func (infiniteGradientCost) CostPrime(output, target float32) float32 {
	return float32(math.Inf(1))
}

func TestNonFiniteGradientKeepsWeights(t *testing.T) {
	var g = newGraph(t)
	var before [][]float32
	for _, p := range g.Params.All() {
		before = append(before, append([]float32(nil), p.Values...))
	}
	var out = t.TempDir()
	var tr = NewTrainer(g, quant.DefaultFormat(256, 64), infiniteGradientCost{}, ml.DefaultAdamW())
	var err = tr.Run(context.Background(), newSchedule(1, 2, 2, 1, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	assert.True(t, errors.Is(err, domain.ErrNumericInstability), "%v", err)
	assert.Contains(t, err.Error(), "gradient of")

	for i, p := range g.Params.All() {
		assert.Equal(t, before[i], p.Values, p.Name)
		for _, v := range p.Values {
			require.True(t, ml.IsFinite(v), p.Name)
		}
	}
	_, err = os.Stat(CheckpointPath(out, "test", 1))
	assert.True(t, os.IsNotExist(err))
}

func TestTrainBatchReturnsLossError(t *testing.T) {
	var g = newGraph(t)
	g.L1.Biases.Values[0] = float32(math.NaN())
	var tr = newTrainer(g)
	tr.threads = []*network.Thread{g.NewThread(), g.NewThread()}

	var records []dataset.Record
	for _, item := range positions {
		r, err := dataset.FromItem(item)
		require.NoError(t, err)
		records = append(records, r)
	}
	samples, err := prepareSamples(records, 400, 0.5)
	require.NoError(t, err)

	var before = append([]float32(nil), g.L0.Weights.Values...)
	_, err = tr.trainBatch(samples, 0.001)
	assert.True(t, errors.Is(err, domain.ErrNumericInstability), "%v", err)
	assert.Contains(t, err.Error(), "batch loss")
	assert.Equal(t, before, g.L0.Weights.Values)
}

func TestQuantisationOverflowIsFatal(t *testing.T) {
	var g = newGraph(t)
	var tr = newTrainer(g)
	tr.optimiser.MinWeight = -1000
	tr.optimiser.MaxWeight = 1000
	// 200 * QA does not fit in int16
	g.L0.Biases.Values[0] = 200
	var out = t.TempDir()
	var err = tr.Run(context.Background(), newSchedule(1, 3, 1, 1, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(writeDataset(t)))
	assert.True(t, errors.Is(err, domain.ErrQuantisationOverflow), "%v", err)

	var path = CheckpointPath(out, "test", 1)
	_, err = os.Stat(filepath.Join(path, RawFileName))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(path, QuantisedFileName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(CheckpointPath(out, "test", 2))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRejectsBadSetup(t *testing.T) {
	var data = writeDataset(t)
	var out = filepath.Join(t.TempDir(), "out")

	var err = newTrainer(newGraph(t)).Run(context.Background(), newSchedule(1, 2, 1, 1, 0.001),
		Settings{Threads: 0, BatchQueueSize: 1, OutputDirectory: out},
		dataset.NewDirectSequentialDataLoader(data))
	assert.True(t, errors.Is(err, domain.ErrConfiguration), "%v", err)

	err = newTrainer(newGraph(t)).Run(context.Background(), newSchedule(3, 2, 1, 1, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(data))
	assert.True(t, errors.Is(err, domain.ErrConfiguration), "%v", err)

	err = newTrainer(newGraph(t)).Run(context.Background(), newSchedule(1, 2, 1, 1, 0.001), settings(out),
		dataset.NewDirectSequentialDataLoader(data, filepath.Join(t.TempDir(), "missing.bin")))
	assert.True(t, errors.Is(err, domain.ErrDataSource), "%v", err)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestPrepareSamples(t *testing.T) {
	var records []dataset.Record
	for _, item := range positions {
		r, err := dataset.FromItem(item)
		require.NoError(t, err)
		records = append(records, r)
	}
	samples, err := prepareSamples(records, 400, 0.25)
	require.NoError(t, err)
	require.Len(t, samples, len(records))
	for i := range records {
		var pieces = records[i].AppendPieces(nil)
		stm, ntm, err := chess768.Encode(pieces, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, stm, samples[i].Stm)
		assert.Equal(t, ntm, samples[i].Ntm)
		assert.Equal(t, ml.BlendTarget(records[i].GameResult(), int(records[i].Score), 400, 0.25), samples[i].Target)
	}
}

func TestValidationCost(t *testing.T) {
	var data = writeDataset(t)
	records, err := LoadValidation(data, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	records, err = LoadValidation(data, 100)
	require.NoError(t, err)
	assert.Len(t, records, len(positions))

	var tr = newTrainer(newGraph(t))
	tr.SetValidation(records)
	require.NoError(t, tr.Run(context.Background(), newSchedule(1, 2, 2, 1, 0.001), settings(t.TempDir()),
		dataset.NewDirectSequentialDataLoader(data)))

	cost, err := tr.validationCost(400, 0.5)
	require.NoError(t, err)
	assert.Greater(t, cost, 0.0)
	assert.Less(t, cost, 1.0)
}
