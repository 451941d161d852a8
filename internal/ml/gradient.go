package ml

import "github.com/chewxy/math32"

// AdamW hyperparameters. Weights are clipped to [MinWeight, MaxWeight] after every step.
type AdamW struct {
	Beta1     float32
	Beta2     float32
	Decay     float32
	MinWeight float32
	MaxWeight float32
}

func DefaultAdamW() AdamW {
	return AdamW{
		Beta1:     0.9,
		Beta2:     0.999,
		Decay:     0.01,
		MinWeight: -1.98,
		MaxWeight: 1.98,
	}
}

type Gradient struct {
	Value float32
	M1    float32
	M2    float32
}

func (g *Gradient) Calculate(opt *AdamW, lr float32) float32 {
	g.M1 = g.M1*opt.Beta1 + g.Value*(1-opt.Beta1)
	g.M2 = g.M2*opt.Beta2 + (g.Value*g.Value)*(1-opt.Beta2)
	return lr * g.M1 / (math32.Sqrt(g.M2) + 1e-8)
}

type Gradients struct {
	Data []Gradient
}

func NewGradients(size int) Gradients {
	return Gradients{
		Data: make([]Gradient, size),
	}
}

// AddScaled accumulates a thread-local gradient buffer and zeroes it.
func (g *Gradients) AddScaled(local []float32, scale float32) {
	for i := range g.Data {
		g.Data[i].Value += local[i] * scale
		local[i] = 0
	}
}

// Finite reports whether every accumulated gradient is a finite number.
func (g *Gradients) Finite() bool {
	for i := range g.Data {
		if !IsFinite(g.Data[i].Value) {
			return false
		}
	}
	return true
}

// Apply performs one AdamW step on values and resets the accumulated gradient.
func (g *Gradients) Apply(values []float32, opt *AdamW, lr float32) {
	for i := range g.Data {
		var w = values[i]
		w -= lr * opt.Decay * w
		w -= g.Data[i].Calculate(opt, lr)
		if w < opt.MinWeight {
			w = opt.MinWeight
		} else if w > opt.MaxWeight {
			w = opt.MaxWeight
		}
		values[i] = w
		g.Data[i].Value = 0
	}
}
