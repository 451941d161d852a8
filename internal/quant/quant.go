// Package quant converts trained float parameters into the int16 fixed-point
// tensors read by the engine.
//
// Scales compose across layers: the first layer is stored at QA, the output weights
// at QB, and the output bias at QA*QB because it is added to an accumulator that
// already carries both factors. Rounding is half away from zero (math.Round), so a
// given float checkpoint always produces the same bytes.
package quant

import (
	"fmt"
	"math"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
)

type Role string

const (
	L0Weights Role = "l0w"
	L0Biases  Role = "l0b"
	L1Weights Role = "l1w"
	L1Biases  Role = "l1b"
)

// ScaleExpr names the scale of a role in terms of QA and QB.
type ScaleExpr int

const (
	ScaleQA ScaleExpr = iota
	ScaleQB
	ScaleQAQB
)

func (s ScaleExpr) String() string {
	switch s {
	case ScaleQA:
		return "QA"
	case ScaleQB:
		return "QB"
	case ScaleQAQB:
		return "QA*QB"
	}
	return fmt.Sprintf("ScaleExpr(%d)", int(s))
}

func (s ScaleExpr) Value(qa, qb int) int {
	switch s {
	case ScaleQA:
		return qa
	case ScaleQB:
		return qb
	case ScaleQAQB:
		return qa * qb
	}
	panic(fmt.Sprintf("unknown scale %d", int(s)))
}

// SavedFormat is one save directive: which parameter and at which scale.
type SavedFormat struct {
	Role  Role
	Scale ScaleExpr
}

// Format is the ordered list of save directives. The order is the artifact layout.
type Format struct {
	QA      int
	QB      int
	Entries []SavedFormat
}

func DefaultFormat(qa, qb int) Format {
	return Format{
		QA: qa,
		QB: qb,
		Entries: []SavedFormat{
			{Role: L0Weights, Scale: ScaleQA},
			{Role: L0Biases, Scale: ScaleQA},
			{Role: L1Weights, Scale: ScaleQB},
			{Role: L1Biases, Scale: ScaleQAQB},
		},
	}
}

func (f Format) Validate() error {
	if f.QA <= 0 || f.QB <= 0 {
		return domain.ConfigErrorf("quantisation scales must be positive, QA=%v QB=%v", f.QA, f.QB)
	}
	if int64(f.QA)*int64(f.QB) > math.MaxInt32 {
		return domain.ConfigErrorf("QA*QB=%v does not fit int32", int64(f.QA)*int64(f.QB))
	}
	if len(f.Entries) == 0 {
		return domain.ConfigErrorf("empty save format")
	}
	return nil
}

// ScaleOf returns the integer scale declared for role.
func (f Format) ScaleOf(role Role) (int, error) {
	for _, e := range f.Entries {
		if e.Role == role {
			return e.Scale.Value(f.QA, f.QB), nil
		}
	}
	return 0, domain.ConfigErrorf("no save directive for %v", role)
}

// ParamSource gives read access to named float parameters.
type ParamSource interface {
	Values(name string) ([]float32, bool)
}

// Quantise converts every declared parameter, in declaration order.
func (f Format) Quantise(src ParamSource) ([]Tensor, error) {
	var result = make([]Tensor, 0, len(f.Entries))
	for _, e := range f.Entries {
		var values, ok = src.Values(string(e.Role))
		if !ok {
			return nil, domain.ConfigErrorf("parameter %v not found", e.Role)
		}
		var t, err = Quantise(values, e.Role, e.Scale.Value(f.QA, f.QB))
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

type Tensor struct {
	Role  Role
	Scale int
	Data  []int16
}

// OverflowError reports a value that does not fit int16 once scaled.
// It usually means the run diverged or a scale is misconfigured.
type OverflowError struct {
	Role  Role
	Index int
	Value float32
	Scale int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("quantisation overflow: %v[%v]=%v with scale %v does not fit int16",
		e.Role, e.Index, e.Value, e.Scale)
}

func (e *OverflowError) Is(target error) bool {
	return target == domain.ErrQuantisationOverflow
}

// Quantise returns round(v*scale) for every element, failing on the first value
// outside the int16 range.
func Quantise(values []float32, role Role, scale int) (Tensor, error) {
	if scale <= 0 {
		return Tensor{}, domain.ConfigErrorf("non-positive scale %v for %v", scale, role)
	}
	var data = make([]int16, len(values))
	for i, v := range values {
		var x = math.Round(float64(v) * float64(scale))
		if math.IsNaN(x) || x > math.MaxInt16 || x < math.MinInt16 {
			return Tensor{}, errors.WithStack(&OverflowError{Role: role, Index: i, Value: v, Scale: scale})
		}
		data[i] = int16(x)
	}
	return Tensor{Role: role, Scale: scale, Data: data}, nil
}

func Dequantise(t Tensor) []float32 {
	var result = make([]float32, len(t.Data))
	for i, v := range t.Data {
		result[i] = float32(float64(v) / float64(t.Scale))
	}
	return result
}
