package schedule

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/petrelchess/petrelnet/internal/domain"
)

type ConstantLR struct {
	Value float32
}

func (l *ConstantLR) LR(int, TrainingSteps) float32 { return l.Value }

func (l *ConstantLR) Validate(TrainingSteps) error { return validateLR(l.Value) }

func (l *ConstantLR) String() string { return fmt.Sprintf("constant %v", l.Value) }

// LinearDecayLR goes linearly from Initial at the first superbatch
// to Final at FinalSuperbatch and stays at Final afterwards.
type LinearDecayLR struct {
	Initial         float32
	Final           float32
	FinalSuperbatch int
}

func (l *LinearDecayLR) LR(superbatch int, steps TrainingSteps) float32 {
	var lambda = progress(superbatch, steps.StartSuperbatch, l.FinalSuperbatch)
	return l.Initial*(1-lambda) + l.Final*lambda
}

func (l *LinearDecayLR) Validate(steps TrainingSteps) error {
	if l.FinalSuperbatch < steps.StartSuperbatch {
		return domain.ConfigErrorf("lr final superbatch %v is before start %v",
			l.FinalSuperbatch, steps.StartSuperbatch)
	}
	if err := validateLR(l.Initial); err != nil {
		return err
	}
	return validateLR(l.Final)
}

func (l *LinearDecayLR) String() string {
	return fmt.Sprintf("linear %v -> %v at %v", l.Initial, l.Final, l.FinalSuperbatch)
}

// StepLR multiplies Start by Gamma every Step superbatches.
type StepLR struct {
	Start float32
	Gamma float32
	Step  int
}

func (l *StepLR) LR(superbatch int, steps TrainingSteps) float32 {
	var n = (superbatch - steps.StartSuperbatch) / l.Step
	return l.Start * math32.Pow(l.Gamma, float32(n))
}

func (l *StepLR) Validate(TrainingSteps) error {
	if l.Step < 1 {
		return domain.ConfigErrorf("lr step must be at least 1, got %v", l.Step)
	}
	if !finite(l.Gamma) || l.Gamma <= 0 {
		return domain.ConfigErrorf("bad lr gamma %v", l.Gamma)
	}
	return validateLR(l.Start)
}

func (l *StepLR) String() string {
	return fmt.Sprintf("step %v x %v every %v", l.Start, l.Gamma, l.Step)
}

// CosineDecayLR follows half a cosine from Initial down to Final at FinalSuperbatch.
type CosineDecayLR struct {
	Initial         float32
	Final           float32
	FinalSuperbatch int
}

func (l *CosineDecayLR) LR(superbatch int, steps TrainingSteps) float32 {
	var lambda = progress(superbatch, steps.StartSuperbatch, l.FinalSuperbatch)
	var cos = (1 + math32.Cos(math32.Pi*lambda)) / 2
	return l.Final + (l.Initial-l.Final)*cos
}

func (l *CosineDecayLR) Validate(steps TrainingSteps) error {
	var linear = LinearDecayLR(*l)
	return linear.Validate(steps)
}

func (l *CosineDecayLR) String() string {
	return fmt.Sprintf("cosine %v -> %v at %v", l.Initial, l.Final, l.FinalSuperbatch)
}

func validateLR(lr float32) error {
	if !finite(lr) || lr < 0 {
		return domain.ConfigErrorf("bad learning rate %v", lr)
	}
	return nil
}
