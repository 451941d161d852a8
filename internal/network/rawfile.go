package network

import (
	"encoding/binary"
	"io"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
)

// Binary layout of a float checkpoint (raw.bin):
//   - All the data is stored in little-endian layout
//   - Weight matrices are written input-major (the Out weights of one input are contiguous)
//   - 4 bytes magic/version: 'P', 'N', major 1, minor 0
//   - uint32 network id
//   - uint32 input size, uint32 output size, uint32 number of hidden layers
//   - uint32 size of each hidden layer
//   - float32 l0 weights, l0 biases, l1 weights, l1 biases
var rawMagic = [4]byte{'P', 'N', 1, 0}

type rawTopology struct {
	Inputs  uint32
	Outputs uint32
	Hidden  uint32
}

func (g *Graph) SaveRaw(w io.Writer, id uint32) error {
	var err = binary.Write(w, binary.LittleEndian, rawMagic)
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, id)
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, rawTopology{
		Inputs:  uint32(g.Config.InputSize),
		Outputs: 1,
		Hidden:  1,
	})
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, uint32(g.Config.HiddenSize))
	if err != nil {
		return err
	}
	for _, p := range g.Params.All() {
		err = binary.Write(w, binary.LittleEndian, p.Values)
		if err != nil {
			return errors.Wrapf(err, "write %v", p.Name)
		}
	}
	return nil
}

// LoadRaw overwrites the parameters of g with a float checkpoint of the same shape
// and returns the stored network id.
func (g *Graph) LoadRaw(r io.Reader) (uint32, error) {
	var magic [4]byte
	var err = binary.Read(r, binary.LittleEndian, &magic)
	if err != nil {
		return 0, err
	}
	if magic != rawMagic {
		return 0, domain.ConfigErrorf("bad raw network header %v", magic)
	}
	var id uint32
	err = binary.Read(r, binary.LittleEndian, &id)
	if err != nil {
		return 0, err
	}
	var topology rawTopology
	err = binary.Read(r, binary.LittleEndian, &topology)
	if err != nil {
		return 0, err
	}
	if topology.Inputs != uint32(g.Config.InputSize) || topology.Outputs != 1 || topology.Hidden != 1 {
		return 0, domain.ConfigErrorf("raw network topology %+v does not match", topology)
	}
	var hidden uint32
	err = binary.Read(r, binary.LittleEndian, &hidden)
	if err != nil {
		return 0, err
	}
	if hidden != uint32(g.Config.HiddenSize) {
		return 0, domain.ConfigErrorf("raw network hidden size %v, expected %v", hidden, g.Config.HiddenSize)
	}
	g.Params.Update(func() {
		for _, p := range g.Params.All() {
			err = binary.Read(r, binary.LittleEndian, p.Values)
			if err != nil {
				err = errors.Wrapf(err, "read %v", p.Name)
				return
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
