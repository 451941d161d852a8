package network

import (
	"io"

	"github.com/petrelchess/petrelnet/internal/quant"
)

// QuantisedNet evaluates a quantised artifact the way the engine does:
// integer accumulators, activations clamped to [0, QA] and squared,
// one division by QA before the bias and a final division by QA*QB.
type QuantisedNet struct {
	HiddenSize int
	QA         int64
	QB         int64
	L0W        []int16
	L0B        []int16
	L1W        []int16
	L1B        int16
}

func artifactSizes(inputSize, hiddenSize int) map[quant.Role]int {
	return map[quant.Role]int{
		quant.L0Weights: inputSize * hiddenSize,
		quant.L0Biases:  hiddenSize,
		quant.L1Weights: 2 * hiddenSize,
		quant.L1Biases:  1,
	}
}

// LoadQuantised reads an artifact written with f for a network shaped as cfg.
func LoadQuantised(r io.Reader, cfg Config, f quant.Format) (*QuantisedNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var tensors, err = quant.ReadArtifact(r, f, artifactSizes(cfg.InputSize, cfg.HiddenSize))
	if err != nil {
		return nil, err
	}
	return NewQuantisedNet(cfg.HiddenSize, f, tensors), nil
}

func NewQuantisedNet(hiddenSize int, f quant.Format, tensors []quant.Tensor) *QuantisedNet {
	var n = &QuantisedNet{
		HiddenSize: hiddenSize,
		QA:         int64(f.QA),
		QB:         int64(f.QB),
	}
	for _, t := range tensors {
		switch t.Role {
		case quant.L0Weights:
			n.L0W = t.Data
		case quant.L0Biases:
			n.L0B = t.Data
		case quant.L1Weights:
			n.L1W = t.Data
		case quant.L1Biases:
			n.L1B = t.Data[0]
		}
	}
	return n
}

// Evaluate returns the evaluation in centipawns from the side to move's point of view.
func (n *QuantisedNet) Evaluate(stm, ntm []int16, evalScale int) int {
	var h = n.HiddenSize
	var output int64
	output += n.perspective(stm, n.L1W[:h])
	output += n.perspective(ntm, n.L1W[h:])
	output /= n.QA
	output += int64(n.L1B)
	output *= int64(evalScale)
	output /= n.QA * n.QB
	return int(output)
}

func (n *QuantisedNet) perspective(indices []int16, outputWeights []int16) int64 {
	var h = n.HiddenSize
	var sum int64
	for j := 0; j < h; j++ {
		var acc = int64(n.L0B[j])
		for _, index := range indices {
			acc += int64(n.L0W[int(index)*h+j])
		}
		acc = min(max(acc, 0), n.QA)
		sum += acc * acc * int64(outputWeights[j])
	}
	return sum
}
