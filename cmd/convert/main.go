// Command convert packs text positions ("fen;score;result" or zurichess "fen \"1-0\"")
// into the 32 byte records read by the trainer.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/janpfeifer/must"
	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	flagInput  = flag.String("input", "", "Path to text dataset")
	flagOutput = flag.String("output", "", "Path to packed output file")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *flagInput == "" || *flagOutput == "" {
		klog.Fatal("both -input and -output are required")
	}
	var count = must.M1(run(context.Background(), *flagInput, *flagOutput))
	klog.Infof("Converted %v positions to %v", count, *flagOutput)
}

func run(ctx context.Context, input, output string) (int, error) {
	file, err := os.Create(output)
	if err != nil {
		return 0, errors.Wrap(err, "create output")
	}
	defer file.Close()

	var items = make(chan domain.DatasetItem, 1024)
	var count int
	var g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		return (&dataset.TextDatasetProvider{FilePath: input}).Load(gctx, items)
	})
	g.Go(func() error {
		var w = dataset.NewWriter(file)
		for item := range items {
			var r, err = dataset.FromItem(item)
			if err != nil {
				return errors.WithMessagef(err, "position %v", count+1)
			}
			if err = w.Write(&r); err != nil {
				return err
			}
			count++
			if count%1_000_000 == 0 {
				klog.V(1).Infof("converted %v positions", count)
			}
		}
		return w.Flush()
	})
	if err := g.Wait(); err != nil {
		return count, err
	}
	return count, file.Close()
}
