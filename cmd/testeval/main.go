// Command testeval reports how well a checkpoint predicts a packed dataset, for both
// the float parameters in raw.bin and the quantised network the engine will load.
package main

import (
	"bufio"
	"flag"
	"os"
	"path/filepath"

	"github.com/janpfeifer/must"
	"github.com/petrelchess/petrelnet/internal/config"
	"github.com/petrelchess/petrelnet/internal/network"
	"github.com/petrelchess/petrelnet/internal/quality"
	"github.com/petrelchess/petrelnet/internal/train"
	"k8s.io/klog/v2"
)

type floatEvaluator struct {
	thread    *network.Thread
	evalScale float64
}

func (e *floatEvaluator) Evaluate(stm, ntm []int16) float64 {
	return float64(e.thread.Forward(stm, ntm)) * e.evalScale
}

type quantisedEvaluator struct {
	net       *network.QuantisedNet
	evalScale int
}

func (e *quantisedEvaluator) Evaluate(stm, ntm []int16) float64 {
	return float64(e.net.Evaluate(stm, ntm, e.evalScale))
}

func main() {
	var cfg = config.Default()
	var checkpoint, validationPath string
	var maxSize int
	var wdl float64

	klog.InitFlags(nil)
	flag.StringVar(&checkpoint, "net", "", "Checkpoint directory with raw.bin and quantised.bin")
	flag.StringVar(&validationPath, "vd", "", "Path to packed validation dataset")
	flag.IntVar(&maxSize, "dms", 1_000_000, "Max size of dataset")
	flag.Float64Var(&wdl, "wdl", 0, "Game result weight in the target")
	flag.IntVar(&cfg.HiddenSize, "hidden", cfg.HiddenSize, "Hidden layer size")
	flag.IntVar(&cfg.QA, "qa", cfg.QA, "Quantisation factor of the first layer")
	flag.IntVar(&cfg.QB, "qb", cfg.QB, "Quantisation factor of the output weights")
	flag.Float64Var(&cfg.EvalScale, "eval_scale", cfg.EvalScale, "Centipawns per unit of network output")
	flag.Parse()
	defer klog.Flush()

	var graph = must.M1(network.Build(cfg.NetworkConfig()))
	var raw = must.M1(os.Open(filepath.Join(checkpoint, train.RawFileName)))
	defer raw.Close()
	must.M1(graph.LoadRaw(bufio.NewReader(raw)))

	var quantised = must.M1(os.Open(filepath.Join(checkpoint, train.QuantisedFileName)))
	defer quantised.Close()
	var net = must.M1(network.LoadQuantised(bufio.NewReader(quantised), graph.Config, cfg.Format()))

	klog.Info("float network")
	must.M1(quality.RunQuality(&floatEvaluator{thread: graph.NewThread(), evalScale: cfg.EvalScale},
		validationPath, float32(cfg.EvalScale), float32(wdl), maxSize))
	klog.Info("quantised network")
	must.M1(quality.RunQuality(&quantisedEvaluator{net: net, evalScale: int(cfg.EvalScale)},
		validationPath, float32(cfg.EvalScale), float32(wdl), maxSize))
}
