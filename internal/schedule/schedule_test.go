package schedule

import (
	"math"
	"testing"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func petrelSchedule() *TrainingSchedule {
	const superbatches = 120
	return &TrainingSchedule{
		NetID:     "petrel128",
		EvalScale: 800,
		Steps: TrainingSteps{
			BatchSize:            16_384,
			BatchesPerSuperbatch: 6_104,
			StartSuperbatch:      1,
			EndSuperbatch:        superbatches,
		},
		LRScheduler:  &LinearDecayLR{Initial: 0.001, Final: 0, FinalSuperbatch: superbatches},
		WDLScheduler: &LinearWDL{Start: 0, End: 0.1},
		SaveRate:     10,
	}
}

func TestScheduleCurves(t *testing.T) {
	var s = petrelSchedule()
	require.NoError(t, s.Validate())

	assert.Equal(t, float32(0.001), s.LR(1))
	assert.Equal(t, float32(0), s.LR(120))
	assert.Equal(t, float32(0), s.LR(500))
	assert.Equal(t, float32(0), s.WDL(1))
	assert.InDelta(t, 0.1, s.WDL(120), 1e-7)

	for b := 2; b <= 120; b++ {
		assert.LessOrEqual(t, s.LR(b), s.LR(b-1))
		assert.GreaterOrEqual(t, s.WDL(b), s.WDL(b-1))
	}
	assert.Equal(t, 120*6_104, s.TotalSteps())
}

func TestShouldCheckpoint(t *testing.T) {
	var s = petrelSchedule()
	s.Steps.StartSuperbatch = 3
	s.SaveRate = 4
	for b := 3; b <= 120; b++ {
		assert.Equal(t, (b-3)%4 == 0, s.ShouldCheckpoint(b), "superbatch %v", b)
	}
	s.SaveRate = 1
	for b := 3; b <= 10; b++ {
		assert.True(t, s.ShouldCheckpoint(b))
	}
}

func TestScheduleValidate(t *testing.T) {
	for name, mutate := range map[string]func(s *TrainingSchedule){
		"start after end":   func(s *TrainingSchedule) { s.Steps.StartSuperbatch = 121 },
		"zero start":        func(s *TrainingSchedule) { s.Steps.StartSuperbatch = 0 },
		"zero save rate":    func(s *TrainingSchedule) { s.SaveRate = 0 },
		"zero batch size":   func(s *TrainingSchedule) { s.Steps.BatchSize = 0 },
		"no net id":         func(s *TrainingSchedule) { s.NetID = "" },
		"bad eval scale":    func(s *TrainingSchedule) { s.EvalScale = 0 },
		"infinite lr":       func(s *TrainingSchedule) { s.LRScheduler = &ConstantLR{Value: float32(math.Inf(1))} },
		"wdl out of range":  func(s *TrainingSchedule) { s.WDLScheduler = &LinearWDL{Start: 0, End: 1.5} },
		"lr final too soon": func(s *TrainingSchedule) { s.LRScheduler = &LinearDecayLR{Initial: 1, FinalSuperbatch: 0} },
		"bad step":          func(s *TrainingSchedule) { s.LRScheduler = &StepLR{Start: 1, Gamma: 0.5} },
		"missing wdl":       func(s *TrainingSchedule) { s.WDLScheduler = nil },
	} {
		var s = petrelSchedule()
		mutate(s)
		var err = s.Validate()
		assert.True(t, errors.Is(err, domain.ErrConfiguration), "%v: %v", name, err)
	}
}

func TestOtherSchedulers(t *testing.T) {
	var steps = TrainingSteps{BatchSize: 1, BatchesPerSuperbatch: 1, StartSuperbatch: 1, EndSuperbatch: 40}

	var step = &StepLR{Start: 0.01, Gamma: 0.1, Step: 10}
	assert.Equal(t, float32(0.01), step.LR(1, steps))
	assert.Equal(t, float32(0.01), step.LR(10, steps))
	assert.InDelta(t, 0.001, step.LR(11, steps), 1e-9)

	var cosine = &CosineDecayLR{Initial: 0.01, Final: 0.001, FinalSuperbatch: 21}
	assert.InDelta(t, 0.01, cosine.LR(1, steps), 1e-9)
	assert.InDelta(t, 0.0055, cosine.LR(11, steps), 1e-6)
	assert.InDelta(t, 0.001, cosine.LR(21, steps), 1e-9)
	assert.NoError(t, cosine.Validate(steps))

	var constant = &ConstantWDL{Value: 0.4}
	assert.Equal(t, float32(0.4), constant.WDL(17, steps))
}
