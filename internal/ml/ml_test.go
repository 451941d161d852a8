package ml

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestSCReLU(t *testing.T) {
	var a = &SCReLUActivation{}
	assert.Equal(t, float32(0), a.Sigma(-3))
	assert.Equal(t, float32(0), a.Sigma(0))
	assert.Equal(t, float32(1), a.Sigma(1))
	assert.Equal(t, float32(1), a.Sigma(42))
	assert.InDelta(t, 0.25, a.Sigma(0.5), 1e-7)

	var prev = a.Sigma(0)
	for x := float32(0); x <= 1; x += 1.0 / 256 {
		var y = a.Sigma(x)
		assert.GreaterOrEqual(t, y, prev)
		prev = y
	}

	assert.Equal(t, float32(0), a.SigmaPrime(-1))
	assert.Equal(t, float32(0), a.SigmaPrime(2))
	assert.InDelta(t, 1.0, a.SigmaPrime(0.5), 1e-7)
}

func TestSigmoidExtremes(t *testing.T) {
	assert.Equal(t, float32(0.5), Sigmoid(0))
	assert.InDelta(t, 1.0, Sigmoid(200), 1e-7)
	assert.InDelta(t, 0.0, Sigmoid(-200), 1e-7)
	assert.True(t, IsFinite(Sigmoid(1e30)))
	assert.True(t, IsFinite(Sigmoid(-1e30)))
}

func TestPowerErrorCostGradient(t *testing.T) {
	var c = &PowerErrorCost{Power: 2.6}
	const h = 1e-3
	for _, tc := range []struct{ output, target float32 }{
		{0.3, 0.8},
		{-1.2, 0.1},
		{2.0, 0.5},
		{0.0, 1.0},
	} {
		var numeric = (c.Cost(tc.output+h, tc.target) - c.Cost(tc.output-h, tc.target)) / (2 * h)
		assert.InDelta(t, numeric, c.CostPrime(tc.output, tc.target), 1e-3, "%+v", tc)
	}
	assert.Equal(t, float32(0), c.CostPrime(0, 0.5))
	assert.InDelta(t, math32.Pow(0.5, 2.6), c.Cost(0, 1), 1e-6)
}

func TestPowerErrorCostIsStableAtExtremes(t *testing.T) {
	var c = &PowerErrorCost{Power: 2.6}
	for _, o := range []float32{-1e6, -100, 100, 1e6} {
		assert.True(t, IsFinite(c.Cost(o, 0.5)))
		assert.True(t, IsFinite(c.CostPrime(o, 0.5)))
	}
}

func TestPowerErrorCostKeepsGradientWhenSaturated(t *testing.T) {
	var c = &PowerErrorCost{Power: 2.6}
	assert.Greater(t, c.CostPrime(200, 0), float32(0))
	assert.Less(t, c.CostPrime(-200, 1), float32(0))
	for _, o := range []float32{90, 104, 120, 500} {
		var g = c.CostPrime(o, 0)
		assert.True(t, IsFinite(g), "output %v", o)
		assert.Greater(t, g, float32(0), "output %v", o)
		assert.Less(t, c.CostPrime(-o, 1), float32(0), "output %v", -o)
	}
	// a correct saturated prediction still has no gradient
	assert.Equal(t, float32(0), c.CostPrime(200, 1))
}

func TestBlendTarget(t *testing.T) {
	const evalScale = 400
	assert.InDelta(t, 1.0, BlendTarget(1, 1_000_000, evalScale, 0.3), 1e-6)
	assert.InDelta(t, 0.0, BlendTarget(0, -1_000_000, evalScale, 0.3), 1e-6)
	assert.InDelta(t, 0.5, BlendTarget(0.5, 0, evalScale, 0.7), 1e-6)
	assert.Equal(t, float32(1), BlendTarget(1, -500, evalScale, 1))
	assert.InDelta(t, Sigmoid(1), BlendTarget(0, evalScale, evalScale, 0), 1e-6)
}

func TestAdamWStep(t *testing.T) {
	var opt = DefaultAdamW()
	opt.Decay = 0

	var values = []float32{1, 1.97}
	var g = NewGradients(len(values))
	var local = []float32{2, -2}
	g.AddScaled(local, 0.5)
	assert.Equal(t, []float32{0, 0}, local)

	g.Apply(values, &opt, 0.1)
	assert.InDelta(t, 1-0.316228, values[0], 1e-4)
	assert.Equal(t, opt.MaxWeight, values[1])
	assert.Equal(t, float32(0), g.Data[0].Value)
}

func TestGradientsFinite(t *testing.T) {
	var g = NewGradients(3)
	assert.True(t, g.Finite())
	g.AddScaled([]float32{1, -2, 3}, 0.5)
	assert.True(t, g.Finite())
	g.AddScaled([]float32{0, float32(math.Inf(1)), 0}, 1)
	assert.False(t, g.Finite())

	var nan = NewGradients(1)
	nan.AddScaled([]float32{float32(math.NaN())}, 1)
	assert.False(t, nan.Finite())
}

func TestInitUniform(t *testing.T) {
	var data = make([]float32, 10_000)
	InitUniform(rand.New(rand.NewSource(1)), data, 1.0/12)
	for _, x := range data {
		assert.True(t, x >= -0.5 && x <= 0.5)
	}
}
