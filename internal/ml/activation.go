package ml

import "github.com/chewxy/math32"

type IActivationFn interface {
	Sigma(x float32) float32
	SigmaPrime(x float32) float32
}

// SCReLUActivation is the clipped squared ReLU: clamp(x, 0, 1)^2.
// Keeping activations inside [0, 1] is what lets the quantised accumulator
// be clamped to [0, QA] by the inference engine.
type SCReLUActivation struct{}

func (*SCReLUActivation) Sigma(x float32) float32 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x * x
}

func (*SCReLUActivation) SigmaPrime(x float32) float32 {
	if x <= 0 || x >= 1 {
		return 0
	}
	return 2 * x
}

type SigmoidActivation struct{}

func (*SigmoidActivation) Sigma(x float32) float32 {
	return Sigmoid(x)
}

func (*SigmoidActivation) SigmaPrime(x float32) float32 {
	return Sigmoid(x) * Sigmoid(-x)
}

// Sigmoid never evaluates exp of a positive argument, so it cannot overflow to Inf.
func Sigmoid(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}
	var e = math32.Exp(x)
	return e / (1 + e)
}
