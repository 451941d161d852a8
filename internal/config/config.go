// Package config holds every knob of a training run and builds the network,
// quantisation format, schedule and trainer settings from it.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"strings"

	"github.com/petrelchess/petrelnet/internal/domain"
	"github.com/petrelchess/petrelnet/internal/ml"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/petrelchess/petrelnet/internal/quant"
	"github.com/petrelchess/petrelnet/internal/schedule"
	"github.com/petrelchess/petrelnet/internal/train"
)

type Config struct {
	HiddenSize int
	QA         int
	QB         int
	LossPower  float64
	Seed       int64

	NetID     string
	EvalScale float64

	BatchSize            int
	BatchesPerSuperbatch int
	StartSuperbatch      int
	EndSuperbatch        int
	SaveRate             int

	LRSchedule      string
	InitialLR       float64
	FinalLR         float64
	FinalSuperbatch int
	LRGamma         float64
	LRStep          int

	InitialWDL float64
	FinalWDL   float64

	WeightClip float64

	Threads         int
	BatchQueueSize  int
	OutputDirectory string
	DataFiles       string
	ResumePath      string
	ValidationPath  string
	ValidationSize  int
}

func Default() Config {
	return Config{
		HiddenSize: network.DefaultHiddenSize,
		QA:         256,
		QB:         64,
		LossPower:  2.6,

		NetID:     "petrel128",
		EvalScale: 800,

		BatchSize:            16_384,
		BatchesPerSuperbatch: 6104,
		StartSuperbatch:      1,
		EndSuperbatch:        120,
		SaveRate:             10,

		LRSchedule:      "linear",
		InitialLR:       0.001,
		FinalLR:         0,
		FinalSuperbatch: 120,
		LRGamma:         0.1,
		LRStep:          40,

		InitialWDL: 0,
		FinalWDL:   0.1,

		WeightClip: 1.98,

		Threads:         max(1, runtime.NumCPU()/2),
		BatchQueueSize:  16,
		OutputDirectory: "checkpoints",
		ValidationSize:  500_000,
	}
}

// RegisterFlags binds the fields to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.HiddenSize, "hidden", c.HiddenSize, "Hidden layer size")
	fs.IntVar(&c.QA, "qa", c.QA, "Quantisation factor of the first layer")
	fs.IntVar(&c.QB, "qb", c.QB, "Quantisation factor of the output weights")
	fs.Float64Var(&c.LossPower, "loss_power", c.LossPower, "Exponent of the loss")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Seed of the weight initialisation")
	fs.StringVar(&c.NetID, "net_id", c.NetID, "Name prefix of checkpoints")
	fs.Float64Var(&c.EvalScale, "eval_scale", c.EvalScale, "Centipawns per unit of network output")
	fs.IntVar(&c.BatchSize, "batch_size", c.BatchSize, "Positions per batch")
	fs.IntVar(&c.BatchesPerSuperbatch, "bps", c.BatchesPerSuperbatch, "Batches per superbatch")
	fs.IntVar(&c.StartSuperbatch, "start", c.StartSuperbatch, "First superbatch")
	fs.IntVar(&c.EndSuperbatch, "end", c.EndSuperbatch, "Last superbatch")
	fs.IntVar(&c.SaveRate, "save_rate", c.SaveRate, "Checkpoint every N superbatches")
	fs.StringVar(&c.LRSchedule, "lr_schedule", c.LRSchedule, "Learning rate schedule: constant, linear, step or cosine")
	fs.Float64Var(&c.InitialLR, "lr", c.InitialLR, "Initial learning rate")
	fs.Float64Var(&c.FinalLR, "final_lr", c.FinalLR, "Final learning rate of linear and cosine schedules")
	fs.IntVar(&c.FinalSuperbatch, "final_superbatch", c.FinalSuperbatch, "Superbatch where linear and cosine schedules reach final_lr")
	fs.Float64Var(&c.LRGamma, "lr_gamma", c.LRGamma, "Step schedule multiplier")
	fs.IntVar(&c.LRStep, "lr_step", c.LRStep, "Step schedule period in superbatches")
	fs.Float64Var(&c.InitialWDL, "wdl", c.InitialWDL, "Game result weight in the target at the first superbatch")
	fs.Float64Var(&c.FinalWDL, "final_wdl", c.FinalWDL, "Game result weight in the target at the last superbatch")
	fs.Float64Var(&c.WeightClip, "clip", c.WeightClip, "Optimiser keeps weights in [-clip, clip]")
	fs.IntVar(&c.Threads, "threads", c.Threads, "Number of threads")
	fs.IntVar(&c.BatchQueueSize, "queue", c.BatchQueueSize, "Prepared batches buffered ahead of the trainer")
	fs.StringVar(&c.OutputDirectory, "output", c.OutputDirectory, "Checkpoint directory")
	fs.StringVar(&c.DataFiles, "data", c.DataFiles, "Comma separated packed data files")
	fs.StringVar(&c.ResumePath, "resume", c.ResumePath, "Checkpoint directory with raw.bin to continue from")
	fs.StringVar(&c.ValidationPath, "vd", c.ValidationPath, "Path to packed validation dataset")
	fs.IntVar(&c.ValidationSize, "vds", c.ValidationSize, "Max size of validation dataset")
}

// Files splits DataFiles.
func (c *Config) Files() []string {
	var files []string
	for _, s := range strings.Split(c.DataFiles, ",") {
		if s = strings.TrimSpace(s); s != "" {
			files = append(files, s)
		}
	}
	return files
}

// Validate checks the whole configuration before anything is built.
func (c *Config) Validate() error {
	if err := c.NetworkConfig().Validate(); err != nil {
		return err
	}
	if err := c.Format().Validate(); err != nil {
		return err
	}
	if c.LossPower <= 0 {
		return domain.ConfigErrorf("loss power must be positive, got %v", c.LossPower)
	}
	if c.WeightClip <= 0 {
		return domain.ConfigErrorf("weight clip must be positive, got %v", c.WeightClip)
	}
	// the largest l0 weight must survive quantisation at QA
	if c.WeightClip*float64(c.QA) > 32767 {
		return domain.ConfigErrorf("weight clip %v times QA %v does not fit in int16", c.WeightClip, c.QA)
	}
	sched, err := c.Schedule()
	if err != nil {
		return err
	}
	if err := sched.Validate(); err != nil {
		return err
	}
	return c.Settings().Validate()
}

func (c *Config) NetworkConfig() network.Config {
	var cfg = network.DefaultConfig()
	cfg.HiddenSize = c.HiddenSize
	cfg.Seed = c.Seed
	return cfg
}

func (c *Config) Format() quant.Format {
	return quant.DefaultFormat(c.QA, c.QB)
}

func (c *Config) Cost() ml.IModelCost {
	return &ml.PowerErrorCost{Power: float32(c.LossPower)}
}

func (c *Config) Optimiser() ml.AdamW {
	var opt = ml.DefaultAdamW()
	opt.MinWeight = -float32(c.WeightClip)
	opt.MaxWeight = float32(c.WeightClip)
	return opt
}

func (c *Config) Settings() train.Settings {
	return train.Settings{
		Threads:         c.Threads,
		BatchQueueSize:  c.BatchQueueSize,
		OutputDirectory: c.OutputDirectory,
	}
}

func (c *Config) Schedule() (*schedule.TrainingSchedule, error) {
	var lr schedule.LRScheduler
	switch c.LRSchedule {
	case "constant":
		lr = &schedule.ConstantLR{Value: float32(c.InitialLR)}
	case "linear":
		lr = &schedule.LinearDecayLR{
			Initial:         float32(c.InitialLR),
			Final:           float32(c.FinalLR),
			FinalSuperbatch: c.FinalSuperbatch,
		}
	case "step":
		lr = &schedule.StepLR{Start: float32(c.InitialLR), Gamma: float32(c.LRGamma), Step: c.LRStep}
	case "cosine":
		lr = &schedule.CosineDecayLR{
			Initial:         float32(c.InitialLR),
			Final:           float32(c.FinalLR),
			FinalSuperbatch: c.FinalSuperbatch,
		}
	default:
		return nil, domain.ConfigErrorf("unknown lr schedule %q", c.LRSchedule)
	}

	var wdl schedule.WDLScheduler
	if c.InitialWDL == c.FinalWDL {
		wdl = &schedule.ConstantWDL{Value: float32(c.InitialWDL)}
	} else {
		wdl = &schedule.LinearWDL{Start: float32(c.InitialWDL), End: float32(c.FinalWDL)}
	}

	return &schedule.TrainingSchedule{
		NetID:     c.NetID,
		EvalScale: float32(c.EvalScale),
		Steps: schedule.TrainingSteps{
			BatchSize:            c.BatchSize,
			BatchesPerSuperbatch: c.BatchesPerSuperbatch,
			StartSuperbatch:      c.StartSuperbatch,
			EndSuperbatch:        c.EndSuperbatch,
		},
		LRScheduler:  lr,
		WDLScheduler: wdl,
		SaveRate:     c.SaveRate,
	}, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%v: (768->%v)x2->1, qa %v qb %v, loss power %v, eval scale %v, clip %v, threads %v, queue %v, output %v",
		c.NetID, c.HiddenSize, c.QA, c.QB, c.LossPower, c.EvalScale, c.WeightClip,
		c.Threads, c.BatchQueueSize, c.OutputDirectory)
}
