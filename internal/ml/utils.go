package ml

import (
	"math/rand"

	"github.com/chewxy/math32"
)

// InitUniform fills data with a zero-mean uniform distribution of the given variance.
func InitUniform(rnd *rand.Rand, data []float32, variance float32) {
	const uniformVariance = 1.0 / 12
	var scale = math32.Sqrt(variance / uniformVariance)
	for i := range data {
		data[i] = (rnd.Float32() - 0.5) * scale
	}
}

// IsFinite reports false for NaN and both infinities.
func IsFinite(x float32) bool {
	return !math32.IsNaN(x) && !math32.IsInf(x, 0)
}
