package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/janpfeifer/must"
	"github.com/petrelchess/petrelnet/internal/config"
	"github.com/petrelchess/petrelnet/internal/dataset"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/petrelchess/petrelnet/internal/train"
	"github.com/petrelchess/petrelnet/internal/utils"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var cfg = config.Default()

func main() {
	klog.InitFlags(nil)
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	defer klog.Flush()

	// data files may also be given as arguments
	for _, arg := range flag.Args() {
		if cfg.DataFiles != "" {
			cfg.DataFiles += ","
		}
		cfg.DataFiles += arg
	}
	klog.Info(cfg.String())

	var ctx, cancel = context.WithCancel(context.Background())
	utils.SafeInterrupt(cancel, 30*time.Second)
	defer cancel()

	var err = run(ctx)
	if errors.Is(err, context.Canceled) {
		klog.Warning("Training stopped by interrupt")
		return
	}
	must.M(err)
}

func run(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return err
	}
	graph, err := network.Build(cfg.NetworkConfig())
	if err != nil {
		return err
	}
	var trainer = train.NewTrainer(graph, cfg.Format(), cfg.Cost(), cfg.Optimiser())
	if cfg.ResumePath != "" {
		var path = cfg.ResumePath
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, train.RawFileName)
		}
		saved, err := trainer.Resume(path)
		if err != nil {
			return err
		}
		if saved >= cfg.StartSuperbatch {
			klog.Warningf("Checkpoint was saved after superbatch %v, training starts again at %v",
				saved, cfg.StartSuperbatch)
		}
	}
	if cfg.ValidationPath != "" {
		validation, err := train.LoadValidation(cfg.ValidationPath, cfg.ValidationSize)
		if err != nil {
			return err
		}
		klog.Infof("Loaded validation %v", len(validation))
		trainer.SetValidation(validation)
	}
	var loader = dataset.NewDirectSequentialDataLoader(cfg.Files()...)
	return trainer.Run(ctx, sched, cfg.Settings(), loader)
}
