package network

// Affine is y = W*x + b with W stored input-major: the Out weights of input i
// are contiguous at Weights.Values[i*Out:(i+1)*Out]. Sparse inputs then add whole rows.
type Affine struct {
	Name    string
	In      int
	Out     int
	Weights *Param
	Biases  *Param
}

func newAffine(ps *Params, name string, in, out int) *Affine {
	return &Affine{
		Name:    name,
		In:      in,
		Out:     out,
		Weights: ps.add(name+"w", in, out),
		Biases:  ps.add(name+"b", 1, out),
	}
}

// ForwardSparse treats indices as a 0/1 input vector.
func (a *Affine) ForwardSparse(indices []int16, output []float32) {
	copy(output, a.Biases.Values)
	var w = a.Weights.Values
	for _, index := range indices {
		var row = w[int(index)*a.Out : (int(index)+1)*a.Out]
		for j, x := range row {
			output[j] += x
		}
	}
}

func (a *Affine) ForwardDense(input []float32, output []float32) {
	copy(output, a.Biases.Values)
	var w = a.Weights.Values
	for i, x := range input {
		if x == 0 {
			continue
		}
		var row = w[i*a.Out : (i+1)*a.Out]
		for j := range output {
			output[j] += row[j] * x
		}
	}
}

// BackwardSparse accumulates weight and bias gradients for a sparse input.
func (a *Affine) BackwardSparse(indices []int16, outputGrad []float32, wGrad, bGrad []float32) {
	for j, g := range outputGrad {
		bGrad[j] += g
	}
	for _, index := range indices {
		var row = wGrad[int(index)*a.Out : (int(index)+1)*a.Out]
		for j, g := range outputGrad {
			row[j] += g
		}
	}
}

// BackwardDense accumulates weight and bias gradients and writes the input gradient.
func (a *Affine) BackwardDense(input []float32, outputGrad []float32, wGrad, bGrad, inputGrad []float32) {
	var w = a.Weights.Values
	for j, g := range outputGrad {
		bGrad[j] += g
	}
	for i, x := range input {
		var row = w[i*a.Out : (i+1)*a.Out]
		var gradRow = wGrad[i*a.Out : (i+1)*a.Out]
		var sum float32
		for j, g := range outputGrad {
			gradRow[j] += g * x
			sum += row[j] * g
		}
		if inputGrad != nil {
			inputGrad[i] = sum
		}
	}
}
