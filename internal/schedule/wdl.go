package schedule

import (
	"fmt"

	"github.com/petrelchess/petrelnet/internal/domain"
)

type ConstantWDL struct {
	Value float32
}

func (w *ConstantWDL) WDL(int, TrainingSteps) float32 { return w.Value }

func (w *ConstantWDL) Validate(TrainingSteps) error { return validateWDL(w.Value) }

func (w *ConstantWDL) String() string { return fmt.Sprintf("constant %v", w.Value) }

// LinearWDL moves the game result weight linearly from Start at the first
// superbatch to End at the last one.
type LinearWDL struct {
	Start float32
	End   float32
}

func (w *LinearWDL) WDL(superbatch int, steps TrainingSteps) float32 {
	var lambda = progress(superbatch, steps.StartSuperbatch, steps.EndSuperbatch)
	return w.Start*(1-lambda) + w.End*lambda
}

func (w *LinearWDL) Validate(TrainingSteps) error {
	if err := validateWDL(w.Start); err != nil {
		return err
	}
	return validateWDL(w.End)
}

func (w *LinearWDL) String() string { return fmt.Sprintf("linear %v -> %v", w.Start, w.End) }

func validateWDL(x float32) error {
	if !finite(x) || x < 0 || x > 1 {
		return domain.ConfigErrorf("wdl must be in [0, 1], got %v", x)
	}
	return nil
}
