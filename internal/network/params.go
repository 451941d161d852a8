package network

import "sync"

// Param is a named trainable tensor of Rows x Cols values, stored row-major.
type Param struct {
	Name   string
	Rows   int
	Cols   int
	Values []float32
}

func (p *Param) Size() int { return p.Rows * p.Cols }

// Params is the arena of all trainable tensors of a graph.
// The optimiser is the only writer and runs under Update;
// forward passes and checkpoint saves run under Read and never overlap a write.
type Params struct {
	mu   sync.RWMutex
	list []*Param
}

func (ps *Params) add(name string, rows, cols int) *Param {
	var p = &Param{
		Name:   name,
		Rows:   rows,
		Cols:   cols,
		Values: make([]float32, rows*cols),
	}
	ps.list = append(ps.list, p)
	return p
}

// All returns the parameters in declaration order.
func (ps *Params) All() []*Param { return ps.list }

func (ps *Params) Get(name string) *Param {
	for _, p := range ps.list {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Values implements quant.ParamSource. Callers must hold Read or Update.
func (ps *Params) Values(name string) ([]float32, bool) {
	var p = ps.Get(name)
	if p == nil {
		return nil, false
	}
	return p.Values, true
}

func (ps *Params) Read(f func() error) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return f()
}

func (ps *Params) Update(f func()) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	f()
}
