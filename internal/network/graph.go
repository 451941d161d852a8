// Package network defines the (768 -> H)x2 -> 1 evaluation network.
//
// Both perspectives go through the same l0 layer and a clipped squared ReLU.
// The side-to-move half is placed before the not-to-move half when they are
// concatenated for l1; the engine reads the output weights in that order.
package network

import (
	"math/rand"

	"github.com/petrelchess/petrelnet/internal/chess768"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/ml"
)

const DefaultHiddenSize = 128

type Config struct {
	InputSize  int
	HiddenSize int
	Seed       int64
	// ZeroInit leaves every parameter at zero instead of a random start.
	ZeroInit bool
}

func DefaultConfig() Config {
	return Config{
		InputSize:  chess768.InputSize,
		HiddenSize: DefaultHiddenSize,
	}
}

func (c Config) Validate() error {
	if c.InputSize != chess768.InputSize {
		return domain.ConfigErrorf("input size %v, the feature set has %v", c.InputSize, chess768.InputSize)
	}
	if c.HiddenSize < 1 {
		return domain.ConfigErrorf("hidden size must be positive, got %v", c.HiddenSize)
	}
	return nil
}

type Graph struct {
	Config     Config
	Params     *Params
	L0         *Affine
	L1         *Affine
	activation ml.IActivationFn
}

// Build declares the layers described by cfg and initialises them.
func Build(cfg Config) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var ps = &Params{}
	var g = &Graph{
		Config:     cfg,
		Params:     ps,
		L0:         newAffine(ps, "l0", cfg.InputSize, cfg.HiddenSize),
		L1:         newAffine(ps, "l1", 2*cfg.HiddenSize, 1),
		activation: &ml.SCReLUActivation{},
	}
	if !cfg.ZeroInit {
		var rnd = rand.New(rand.NewSource(cfg.Seed))
		// at most 32 of the 768 inputs are active
		ml.InitUniform(rnd, g.L0.Weights.Values, 1.0/float32(chess768.MaxActive))
		ml.InitUniform(rnd, g.L1.Weights.Values, 2.0/float32(g.L1.In+g.L1.Out))
	}
	return g, nil
}

// Evaluate returns the raw output for one position. It allocates scratch space;
// use a Thread for repeated evaluation.
func (g *Graph) Evaluate(stm, ntm []int16) float32 {
	return g.NewThread().Forward(stm, ntm)
}

// Thread holds the activations and gradient buffers of one worker.
// Weights are shared with the graph.
type Thread struct {
	g       *Graph
	accStm  []float32
	accNtm  []float32
	hidden  []float32
	dHidden []float32
	dAccStm []float32
	dAccNtm []float32
	outGrad []float32
	output  []float32
	grads   [][]float32
}

func (g *Graph) NewThread() *Thread {
	var h = g.Config.HiddenSize
	var t = &Thread{
		g:       g,
		accStm:  make([]float32, h),
		accNtm:  make([]float32, h),
		hidden:  make([]float32, 2*h),
		dHidden: make([]float32, 2*h),
		dAccStm: make([]float32, h),
		dAccNtm: make([]float32, h),
		outGrad: make([]float32, 1),
		output:  make([]float32, 1),
	}
	for _, p := range g.Params.All() {
		t.grads = append(t.grads, make([]float32, p.Size()))
	}
	return t
}

func (t *Thread) Forward(stm, ntm []int16) float32 {
	var h = t.g.Config.HiddenSize
	t.g.L0.ForwardSparse(stm, t.accStm)
	t.g.L0.ForwardSparse(ntm, t.accNtm)
	for j := 0; j < h; j++ {
		t.hidden[j] = t.activation().Sigma(t.accStm[j])
		t.hidden[h+j] = t.activation().Sigma(t.accNtm[j])
	}
	t.g.L1.ForwardDense(t.hidden, t.output)
	return t.output[0]
}

// Backward accumulates the gradient of the last Forward call, given dLoss/dOutput.
func (t *Thread) Backward(stm, ntm []int16, outputGrad float32) {
	var h = t.g.Config.HiddenSize
	t.outGrad[0] = outputGrad
	t.g.L1.BackwardDense(t.hidden, t.outGrad, t.grads[2], t.grads[3], t.dHidden)
	for j := 0; j < h; j++ {
		t.dAccStm[j] = t.dHidden[j] * t.activation().SigmaPrime(t.accStm[j])
		t.dAccNtm[j] = t.dHidden[h+j] * t.activation().SigmaPrime(t.accNtm[j])
	}
	t.g.L0.BackwardSparse(stm, t.dAccStm, t.grads[0], t.grads[1])
	t.g.L0.BackwardSparse(ntm, t.dAccNtm, t.grads[0], t.grads[1])
}

// Gradients are aligned with Graph.Params.All().
func (t *Thread) Gradients() [][]float32 { return t.grads }

func (t *Thread) activation() ml.IActivationFn { return t.g.activation }

// Train runs forward and backward on a sample and returns its cost.
func (t *Thread) Train(sample *domain.Sample, cost ml.IModelCost) float32 {
	var output = t.Forward(sample.Stm, sample.Ntm)
	t.Backward(sample.Stm, sample.Ntm, cost.CostPrime(output, sample.Target))
	return cost.Cost(output, sample.Target)
}

// CalcCost runs forward only.
func (t *Thread) CalcCost(sample *domain.Sample, cost ml.IModelCost) float32 {
	var output = t.Forward(sample.Stm, sample.Ntm)
	return cost.Cost(output, sample.Target)
}
