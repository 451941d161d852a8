// Package dataset reads and writes packed training positions.
package dataset

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DirectSequentialDataLoader streams records from Files in order and starts
// over from the first file when the last one is exhausted.
type DirectSequentialDataLoader struct {
	Files []string
}

func NewDirectSequentialDataLoader(files ...string) *DirectSequentialDataLoader {
	return &DirectSequentialDataLoader{Files: files}
}

// Validate checks every file before training starts. A missing or truncated file
// is fatal: silently training on fewer positions would change the result.
func (l *DirectSequentialDataLoader) Validate() error {
	if len(l.Files) == 0 {
		return domain.DataSourceErrorf("no data files")
	}
	var total int64
	for _, path := range l.Files {
		var info, err = os.Stat(path)
		if err != nil {
			return domain.DataSourceErrorf("%v", err)
		}
		if info.IsDir() {
			return domain.DataSourceErrorf("%v is a directory", path)
		}
		if info.Size() == 0 || info.Size()%RecordSize != 0 {
			return domain.DataSourceErrorf("%v: size %v is not a positive multiple of %v",
				path, info.Size(), RecordSize)
		}
		total += info.Size() / RecordSize
		klog.V(1).Infof("data file %v: %v positions", path, info.Size()/RecordSize)
	}
	klog.Infof("dataset: %v files, %v positions", len(l.Files), total)
	return nil
}

var errEnoughBatches = errors.New("enough batches")

// Stream sends batches of batchSize records to out until batches have been sent.
func (l *DirectSequentialDataLoader) Stream(
	ctx context.Context,
	batchSize int,
	batches int,
	out chan<- []Record,
) error {
	if batches <= 0 {
		return nil
	}
	var sent int
	var batch = make([]Record, 0, batchSize)
	for pass := 1; ; pass++ {
		for _, path := range l.Files {
			var err = WalkFile(path, func(r *Record) error {
				batch = append(batch, *r)
				if len(batch) < batchSize {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- batch:
				}
				batch = make([]Record, 0, batchSize)
				sent++
				if sent >= batches {
					return errEnoughBatches
				}
				return nil
			})
			if err != nil {
				if errors.Is(err, errEnoughBatches) {
					return nil
				}
				return err
			}
		}
		klog.V(1).Infof("finished pass %v over the dataset", pass)
	}
}

// WalkFile calls f for every record of a packed file.
func WalkFile(path string, f func(r *Record) error) error {
	var file, err = os.Open(path)
	if err != nil {
		return domain.DataSourceErrorf("%v", err)
	}
	defer file.Close()

	var reader = bufio.NewReaderSize(file, 1<<20)
	var buf [RecordSize]byte
	var record Record
	for index := 0; ; index++ {
		_, err = io.ReadFull(reader, buf[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return domain.DataSourceErrorf("%v record %v: %v", path, index, err)
		}
		err = record.Unmarshal(buf[:])
		if err != nil {
			return errors.WithMessagef(err, "%v record %v", path, index)
		}
		err = f(&record)
		if err != nil {
			return err
		}
	}
}

// Writer packs records into a file.
type Writer struct {
	w   *bufio.Writer
	buf [RecordSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

func (w *Writer) Write(r *Record) error {
	r.Marshal(w.buf[:])
	var _, err = w.w.Write(w.buf[:])
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
