package train

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/petrelchess/petrelnet/internal/quant"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	QuantisedFileName = "quantised.bin"
	RawFileName       = "raw.bin"
)

// CheckpointPath is the directory of the checkpoint taken after superbatch.
func CheckpointPath(outputDirectory, netID string, superbatch int) string {
	return filepath.Join(outputDirectory, fmt.Sprintf("%v-%v", netID, superbatch))
}

// SaveCheckpoint writes the float parameters and the quantised artifact.
// raw.bin is written first so a checkpoint that fails to quantise can still be inspected.
func (t *Trainer) SaveCheckpoint(outputDirectory, netID string, superbatch int) error {
	var path = CheckpointPath(outputDirectory, netID, superbatch)
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return errors.Wrap(err, "create checkpoint directory")
	}
	var err = t.graph.Params.Read(func() error {
		var err = writeFileAtomic(filepath.Join(path, RawFileName), func(w io.Writer) error {
			return t.graph.SaveRaw(w, uint32(superbatch))
		})
		if err != nil {
			return err
		}
		tensors, err := t.format.Quantise(t.graph.Params)
		if err != nil {
			return errors.WithMessagef(err, "checkpoint %v", path)
		}
		return writeFileAtomic(filepath.Join(path, QuantisedFileName), func(w io.Writer) error {
			return quant.WriteArtifact(w, tensors)
		})
	})
	if err != nil {
		return err
	}
	klog.Infof("Saved checkpoint %v", path)
	return nil
}

// Resume loads the float parameters of a raw.bin file and returns the superbatch
// it was saved after.
func (t *Trainer) Resume(path string) (int, error) {
	var f, err = os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	superbatch, err := t.graph.LoadRaw(bufio.NewReader(f))
	if err != nil {
		return 0, errors.WithMessagef(err, "resume from %v", path)
	}
	klog.Infof("Resumed from %v, saved after superbatch %v", path, superbatch)
	return int(superbatch), nil
}

// writeFileAtomic writes to a temporary file next to path and renames it into place,
// so a reader never sees a partially written checkpoint file.
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	var bw = bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = f.Chmod(0644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
