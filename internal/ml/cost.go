package ml

import "github.com/chewxy/math32"

// minSigmoidSlope bounds sigmoid(o)*sigmoid(-o) from below; float32 flushes it
// to zero once |o| is above about 90.
const minSigmoidSlope = 1e-6

type IModelCost interface {
	Cost(output, target float32) float32
	CostPrime(output, target float32) float32
}

// PowerErrorCost maps the raw output through a sigmoid and compares it to a target in [0, 1]:
//
//	cost  = |sigmoid(o) - t|^p
//	dcost/do = p * |sigmoid(o) - t|^(p-1) * sign(sigmoid(o) - t) * max(sigmoid(o) * sigmoid(-o), 1e-6)
type PowerErrorCost struct {
	Power float32
}

func (c *PowerErrorCost) Cost(output, target float32) float32 {
	var x = math32.Abs(Sigmoid(output) - target)
	return math32.Pow(x, c.Power)
}

func (c *PowerErrorCost) CostPrime(output, target float32) float32 {
	var s = Sigmoid(output)
	var diff = s - target
	if diff == 0 {
		return 0
	}
	var x = c.Power * math32.Pow(math32.Abs(diff), c.Power-1)
	if diff < 0 {
		x = -x
	}
	// s*(1-s) written with two sigmoids keeps full precision when s is close to 1.
	// The floor keeps saturated outputs trainable.
	var slope = max(s*Sigmoid(-output), minSigmoidSlope)
	return x * slope
}

// BlendTarget mixes the game result with the search score squashed into a win probability:
// wdl*result + (1-wdl)*sigmoid(score/evalScale).
func BlendTarget(result float32, score int, evalScale float32, wdl float32) float32 {
	var bySearch = Sigmoid(float32(score) / evalScale)
	return wdl*result + (1-wdl)*bySearch
}
