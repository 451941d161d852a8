// Package schedule describes how long training runs and how its hyperparameters
// move with the superbatch index. Nothing here holds running state: the trainer asks
// the schedule for the values of the superbatch it is about to run.
package schedule

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/petrelchess/petrelnet/internal/domain"
)

type TrainingSteps struct {
	BatchSize            int
	BatchesPerSuperbatch int
	StartSuperbatch      int
	EndSuperbatch        int
}

type LRScheduler interface {
	LR(superbatch int, steps TrainingSteps) float32
	Validate(steps TrainingSteps) error
	fmt.Stringer
}

type WDLScheduler interface {
	WDL(superbatch int, steps TrainingSteps) float32
	Validate(steps TrainingSteps) error
	fmt.Stringer
}

type TrainingSchedule struct {
	NetID        string
	EvalScale    float32
	Steps        TrainingSteps
	LRScheduler  LRScheduler
	WDLScheduler WDLScheduler
	SaveRate     int
}

func (s *TrainingSchedule) Validate() error {
	var steps = s.Steps
	if s.NetID == "" {
		return domain.ConfigErrorf("empty net id")
	}
	if !finite(s.EvalScale) || s.EvalScale <= 0 {
		return domain.ConfigErrorf("eval scale must be positive, got %v", s.EvalScale)
	}
	if steps.BatchSize < 1 || steps.BatchesPerSuperbatch < 1 {
		return domain.ConfigErrorf("batch size %v and batches per superbatch %v must be positive",
			steps.BatchSize, steps.BatchesPerSuperbatch)
	}
	if steps.StartSuperbatch < 1 || steps.StartSuperbatch > steps.EndSuperbatch {
		return domain.ConfigErrorf("bad superbatch range [%v, %v]", steps.StartSuperbatch, steps.EndSuperbatch)
	}
	if s.SaveRate < 1 {
		return domain.ConfigErrorf("save rate must be at least 1, got %v", s.SaveRate)
	}
	if s.LRScheduler == nil || s.WDLScheduler == nil {
		return domain.ConfigErrorf("lr and wdl schedulers are required")
	}
	if err := s.LRScheduler.Validate(steps); err != nil {
		return err
	}
	return s.WDLScheduler.Validate(steps)
}

func (s *TrainingSchedule) LR(superbatch int) float32 {
	return s.LRScheduler.LR(superbatch, s.Steps)
}

func (s *TrainingSchedule) WDL(superbatch int) float32 {
	return s.WDLScheduler.WDL(superbatch, s.Steps)
}

// ShouldCheckpoint is true every SaveRate superbatches counting from the first one.
func (s *TrainingSchedule) ShouldCheckpoint(superbatch int) bool {
	return (superbatch-s.Steps.StartSuperbatch)%s.SaveRate == 0
}

func (s *TrainingSchedule) Superbatches() int {
	return s.Steps.EndSuperbatch - s.Steps.StartSuperbatch + 1
}

func (s *TrainingSchedule) TotalSteps() int {
	return s.Superbatches() * s.Steps.BatchesPerSuperbatch
}

func (s *TrainingSchedule) String() string {
	return fmt.Sprintf("%v superbatches [%v, %v] x %v batches x %v, lr %v, wdl %v, save every %v",
		s.Superbatches(), s.Steps.StartSuperbatch, s.Steps.EndSuperbatch,
		s.Steps.BatchesPerSuperbatch, s.Steps.BatchSize,
		s.LRScheduler, s.WDLScheduler, s.SaveRate)
}

func finite(x float32) bool {
	return !math32.IsNaN(x) && !math32.IsInf(x, 0)
}

// progress is the position of superbatch in [from, to] as a value in [0, 1].
func progress(superbatch, from, to int) float32 {
	if superbatch >= to {
		return 1
	}
	if superbatch <= from {
		return 0
	}
	return float32(superbatch-from) / float32(to-from)
}
