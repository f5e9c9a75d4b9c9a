// Command train runs the image classification experiment driver: it trains
// a registered model on a registered dataset, captures the penultimate-layer
// features and classifier weights at the end of training, decomposes them
// against the output history, and writes the run directory with checkpoint,
// binary artifact, and figures.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tsawler/go-basis/basis"
	"github.com/tsawler/go-basis/checkpoints"
	"github.com/tsawler/go-basis/datasets"
	"github.com/tsawler/go-basis/models"
	"github.com/tsawler/go-basis/plots"
	"github.com/tsawler/go-basis/runindex"
	"github.com/tsawler/go-basis/training"
)

type options struct {
	model   string
	data    string
	root    string
	outdir  string
	indexDB string

	lr            float64
	initLR        float64
	warmup        string
	batchSize     int
	epochs        int
	decayRate     float64
	decayStepSize int
	momentum      float64
	weightDecay   float64
	optimizer     string
	loss          string
	augment       bool
	gradNorm      bool

	seed    int64
	numRun  int
	topK    int
	verbose bool
}

func parseOptions() options {
	defaults := training.DefaultConfig()

	var o options
	flag.StringVar(&o.model, "model", "fc-relu", "model architecture, one of: "+strings.Join(models.List(), ", "))
	flag.StringVar(&o.data, "data", "cifar10", "dataset, one of: "+strings.Join(datasets.List(), ", "))
	flag.StringVar(&o.root, "data_root", "./data", "directory holding the dataset files")
	flag.StringVar(&o.outdir, "outdir", ".", "directory to create run directories in")
	flag.StringVar(&o.indexDB, "index", "", "path of the run index database (empty disables indexing)")

	flag.Float64Var(&o.lr, "lr", defaults.LearningRate, "base learning rate")
	flag.Float64Var(&o.initLR, "init_lr", defaults.InitialLR, "initial learning rate of the warmup ramp")
	flag.StringVar(&o.warmup, "warmup", defaults.Warmup, "warmup scheme: none, constant, linear, exp")
	flag.IntVar(&o.batchSize, "batch_size", defaults.BatchSize, "batch size")
	flag.IntVar(&o.epochs, "num_epoch", defaults.Epochs, "number of training epochs")
	flag.Float64Var(&o.decayRate, "decay_rate", defaults.DecayRate, "step decay factor")
	flag.IntVar(&o.decayStepSize, "decay_stepsize", defaults.DecayStepSize, "epochs between decay steps")
	flag.Float64Var(&o.momentum, "momentum", defaults.Momentum, "SGD momentum")
	flag.Float64Var(&o.weightDecay, "weight_decay", defaults.WeightDecay, "weight decay")
	flag.StringVar(&o.optimizer, "optimizer", defaults.Optimizer, "optimizer: sgd or adam")
	flag.StringVar(&o.loss, "loss", defaults.Loss, "loss: mse or cross-entropy")
	flag.BoolVar(&o.augment, "augment", false, "enable training-split augmentation")
	flag.BoolVar(&o.gradNorm, "grad_norm", false, "collect the squared gradient norm diagnostic")

	flag.Int64Var(&o.seed, "seed", 1, "base random seed")
	flag.IntVar(&o.numRun, "num_run", 1, "number of runs with consecutive seeds")
	flag.IntVar(&o.topK, "topk", basis.DefaultConfig().TopK, "number of singular directions to track")
	flag.BoolVar(&o.verbose, "v", false, "per-epoch progress logging")
	flag.Parse()
	return o
}

// formatValue renders a float the shortest way that round-trips, matching
// the run directory naming convention.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// runDirName builds the run directory name. The seed keeps the directories
// of a multi-run sweep distinct even when consecutive runs finish within
// the same minute.
func runDirName(o options, seed int64, now time.Time) string {
	return fmt.Sprintf("%s-ep%d-bs%d-lr%s-init-lr%s-seed%d-%s",
		o.model, o.epochs, o.batchSize,
		formatValue(o.lr), formatValue(o.initLR), seed,
		now.Format("01-02-15-04"))
}

func main() {
	log.SetFlags(log.LstdFlags)
	o := parseOptions()

	// Resolve both registries up front so an unknown identifier fails
	// before any data loading or training.
	arch, err := models.Get(o.model)
	if err != nil {
		log.Fatalf("%v (available: %s)", err, strings.Join(models.List(), ", "))
	}
	provider, err := datasets.Get(o.data)
	if err != nil {
		log.Fatalf("%v (available: %s)", err, strings.Join(datasets.List(), ", "))
	}

	if o.numRun < 1 {
		log.Fatalf("num_run must be at least 1, got %d", o.numRun)
	}

	var index *runindex.Index
	if o.indexDB != "" {
		index, err = runindex.Open(o.indexDB)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer index.Close()
	}

	for run := 0; run < o.numRun; run++ {
		seed := o.seed + int64(run)
		if o.numRun > 1 {
			log.Printf("run %d/%d (seed %d)", run+1, o.numRun, seed)
		}
		if err := runOnce(o, arch, provider, seed, index); err != nil {
			log.Fatalf("run with seed %d: %v", seed, err)
		}
	}
}

func runOnce(o options, arch models.Architecture, provider datasets.Provider, seed int64, index *runindex.Index) error {
	train, val, err := provider.Load(datasets.Config{
		Root:      o.root,
		BatchSize: o.batchSize,
		Augment:   o.augment,
		Seed:      seed,
	})
	if err != nil {
		return err
	}

	net, err := models.Build(arch.ID, train.NumFeatures(), train.NumClasses(), seed)
	if err != nil {
		return err
	}

	cfg := training.Config{
		Epochs:          o.epochs,
		BatchSize:       o.batchSize,
		LearningRate:    o.lr,
		InitialLR:       o.initLR,
		Warmup:          o.warmup,
		DecayRate:       o.decayRate,
		DecayStepSize:   o.decayStepSize,
		Momentum:        o.momentum,
		WeightDecay:     o.weightDecay,
		Optimizer:       o.optimizer,
		Loss:            o.loss,
		CollectGradNorm: o.gradNorm,
		Verbose:         o.verbose,
	}
	trainer, err := training.NewTrainer(cfg)
	if err != nil {
		return err
	}

	log.Printf("training %s on %s: %d epochs, batch size %d, schedule %s",
		arch.ID, provider.ID, o.epochs, o.batchSize, trainer.Scheduler().GetName())

	start := time.Now()
	result, err := trainer.Run(net, arch.Capture, train, val)
	if err != nil {
		return err
	}
	log.Printf("training finished in %s, best val accuracy %.2f%%",
		time.Since(start).Round(time.Second), 100*result.BestValAccuracy)

	analysisCfg := basis.DefaultConfig()
	analysisCfg.TopK = o.topK
	analysis, err := basis.Analyze(result.Phi, result.Beta, result.History, analysisCfg)
	if err != nil {
		return err
	}
	for _, skipped := range analysis.Skipped {
		log.Printf("analysis: %v", skipped)
	}

	runDir := filepath.Join(o.outdir, runDirName(o, seed, time.Now()))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %v", err)
	}
	log.Printf("writing results to %s", runDir)

	if err := writeOutputs(o, arch.ID, provider.ID, seed, train.NumFeatures(), net, result, analysis, runDir); err != nil {
		return err
	}

	if index != nil {
		rec := &runindex.Record{
			RunDir:          runDir,
			Model:           arch.ID,
			Dataset:         provider.ID,
			Epochs:          o.epochs,
			BatchSize:       o.batchSize,
			Seed:            seed,
			LearningRate:    o.lr,
			InitialLR:       o.initLR,
			Warmup:          o.warmup,
			BestValAccuracy: result.BestValAccuracy,
			FinalTrainLoss:  result.TrainLoss[len(result.TrainLoss)-1],
		}
		if _, err := index.Insert(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeOutputs(o options, model, dataset string, seed int64, inputDim int, net *models.Network, result *training.RunResult, analysis *basis.Result, runDir string) error {
	state := checkpoints.TrainingState{
		Epoch:        o.epochs,
		LearningRate: result.LearningRates[len(result.LearningRates)-1],
		BestAccuracy: result.BestValAccuracy,
	}
	cp, err := checkpoints.ExtractCheckpoint(net, inputDim, state)
	if err != nil {
		return err
	}
	if err := checkpoints.SaveCheckpoint(cp, filepath.Join(runDir, "checkpoint.json")); err != nil {
		return err
	}

	artifact := &checkpoints.RunArtifact{
		Model:          model,
		Dataset:        dataset,
		Epochs:         o.epochs,
		Seed:           seed,
		Features:       checkpoints.TensorFromDense(result.Phi),
		Classifier:     checkpoints.TensorFromDense(result.Beta),
		SingularValues: analysis.SingularValues,
		Metrics: []checkpoints.MetricSeries{
			{Name: "train_loss", Values: result.TrainLoss},
			{Name: "train_accuracy", Values: result.TrainAccuracy},
			{Name: "val_accuracy", Values: result.ValAccuracy},
			{Name: "learning_rate", Values: result.LearningRates},
		},
	}
	for e := 0; e < result.History.Epochs(); e++ {
		snapshot, err := result.History.At(e)
		if err != nil {
			return err
		}
		artifact.Outputs = append(artifact.Outputs, checkpoints.TensorFromDense(snapshot))
	}
	for dir := 1; dir <= o.topK; dir++ {
		if coeffs, ok := analysis.Coefficients[dir]; ok {
			artifact.Coefficients = append(artifact.Coefficients, checkpoints.CoefficientSeries{
				Direction: dir,
				Values:    coeffs,
			})
		}
	}
	if len(result.GradNorms) > 0 {
		artifact.Metrics = append(artifact.Metrics, checkpoints.MetricSeries{
			Name: "squared_grad_norm", Values: result.GradNorms,
		})
	}
	if err := checkpoints.SaveRunArtifact(artifact, filepath.Join(runDir, "run.artifact")); err != nil {
		return err
	}

	collector := training.NewCollector(model)
	collector.RecordRun(result)

	payloads := map[string]training.PlotData{
		filepath.Join(runDir, "training-curves"): collector.GenerateTrainingCurvesPlot(),
		filepath.Join(runDir, "lr-schedule"):     collector.GenerateLearningRatePlot(),
		filepath.Join(runDir, "beta-5"):          collector.GenerateCoefficientPlot(analysis, 5),
		filepath.Join(runDir, "beta-20"):         collector.GenerateCoefficientPlot(analysis, o.topK),
	}
	if len(result.GradNorms) > 0 {
		payloads[filepath.Join(runDir, "grad-norm")] = collector.GenerateGradientNormPlot()
	}
	return plots.RenderAll(payloads)
}
