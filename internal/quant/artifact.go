package quant

import (
	"encoding/binary"
	"io"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
)

// ArtifactAlignment is the size the artifact is zero-padded to.
const ArtifactAlignment = 64

// WriteArtifact writes the tensors one after another as little-endian int16,
// then pads with zeros to a multiple of ArtifactAlignment bytes.
func WriteArtifact(w io.Writer, tensors []Tensor) error {
	var size int
	for _, t := range tensors {
		var err = binary.Write(w, binary.LittleEndian, t.Data)
		if err != nil {
			return errors.Wrapf(err, "write %v", t.Role)
		}
		size += 2 * len(t.Data)
	}
	if rem := size % ArtifactAlignment; rem != 0 {
		var _, err = w.Write(make([]byte, ArtifactAlignment-rem))
		if err != nil {
			return errors.Wrap(err, "write padding")
		}
	}
	return nil
}

// ReadArtifact reads tensors in the order of f. sizes gives the element count of each role.
func ReadArtifact(r io.Reader, f Format, sizes map[Role]int) ([]Tensor, error) {
	var result = make([]Tensor, 0, len(f.Entries))
	for _, e := range f.Entries {
		var n, ok = sizes[e.Role]
		if !ok {
			return nil, domain.ConfigErrorf("unknown size of %v", e.Role)
		}
		var data = make([]int16, n)
		var err = binary.Read(r, binary.LittleEndian, data)
		if err != nil {
			return nil, errors.Wrapf(err, "read %v", e.Role)
		}
		result = append(result, Tensor{
			Role:  e.Role,
			Scale: e.Scale.Value(f.QA, f.QB),
			Data:  data,
		})
	}
	return result, nil
}
