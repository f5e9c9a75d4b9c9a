package training

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/capture"
	"github.com/tsawler/go-basis/datasets"
	"github.com/tsawler/go-basis/models"
	"github.com/tsawler/go-basis/optimizer"
	"github.com/tsawler/go-basis/tensor"
)

// Config holds the training hyperparameters.
type Config struct {
	Epochs    int
	BatchSize int

	// LearningRate is the base (post-warmup) learning rate; InitialLR is
	// where the warmup ramp starts.
	LearningRate float64
	InitialLR    float64
	Warmup       string

	// Step decay applied after warmup completes.
	DecayRate     float64
	DecayStepSize int

	Momentum    float64
	WeightDecay float64
	Optimizer   string // "sgd" or "adam"
	Loss        string // "mse" or "cross-entropy"

	// CollectGradNorm enables the per-epoch squared-gradient-norm
	// diagnostic (an empirical Fisher trace estimate).
	CollectGradNorm bool

	Verbose bool
}

// DefaultConfig returns the standard experiment hyperparameters.
func DefaultConfig() Config {
	return Config{
		Epochs:        310,
		BatchSize:     512,
		LearningRate:  1e-1,
		InitialLR:     1e-2,
		Warmup:        string(WarmupNone),
		DecayRate:     0.33,
		DecayStepSize: 50,
		Momentum:      0.9,
		WeightDecay:   1e-4,
		Optimizer:     "sgd",
		Loss:          "mse",
	}
}

func validateConfig(cfg Config) error {
	if cfg.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", cfg.LearningRate)
	}
	if cfg.InitialLR <= 0 {
		return fmt.Errorf("initial learning rate must be positive, got %g", cfg.InitialLR)
	}
	if _, err := ParseWarmupKind(cfg.Warmup); err != nil {
		return err
	}
	if cfg.DecayRate <= 0 || cfg.DecayRate > 1 {
		return fmt.Errorf("decay rate must be in (0, 1], got %g", cfg.DecayRate)
	}
	if cfg.DecayStepSize <= 0 {
		return fmt.Errorf("decay step size must be positive, got %d", cfg.DecayStepSize)
	}
	switch cfg.Optimizer {
	case "sgd", "adam":
	default:
		return fmt.Errorf("unknown optimizer: %s", cfg.Optimizer)
	}
	if _, err := ParseLoss(cfg.Loss); err != nil {
		return err
	}
	return nil
}

// RunResult collects everything the analysis stage consumes: the output
// history over every epoch (epoch 0 included), the captured feature and
// weight matrices, and the scalar metric histories.
type RunResult struct {
	History *tensor.OutputHistory
	Phi     *mat.Dense
	Beta    *mat.Dense

	TrainLoss     []float64
	TrainAccuracy []float64
	ValAccuracy   []float64
	LearningRates []float64
	GradNorms     []float64

	BestValAccuracy float64
}

// Trainer runs the full experiment loop for one model and dataset pair.
type Trainer struct {
	cfg       Config
	loss      Loss
	optim     optimizer.Optimizer
	scheduler LRScheduler
}

// NewTrainer validates the configuration and assembles the loss, optimizer,
// and learning rate schedule.
func NewTrainer(cfg Config) (*Trainer, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid trainer configuration: %v", err)
	}

	loss, err := ParseLoss(cfg.Loss)
	if err != nil {
		return nil, err
	}

	var optim optimizer.Optimizer
	switch cfg.Optimizer {
	case "adam":
		optim, err = optimizer.NewAdam(0.9, 0.999, 1e-8, cfg.WeightDecay)
	default:
		optim, err = optimizer.NewSGD(cfg.Momentum, cfg.WeightDecay)
	}
	if err != nil {
		return nil, err
	}

	kind, err := ParseWarmupKind(cfg.Warmup)
	if err != nil {
		return nil, err
	}
	warmup, err := NewWarmupScheduler(kind, cfg.InitialLR)
	if err != nil {
		return nil, err
	}
	decay := NewStepLRScheduler(cfg.DecayStepSize, cfg.DecayRate)
	scheduler, err := NewSequentialScheduler(warmup, decay, warmup.Span(cfg.LearningRate))
	if err != nil {
		return nil, err
	}

	return &Trainer{
		cfg:       cfg,
		loss:      loss,
		optim:     optim,
		scheduler: scheduler,
	}, nil
}

// Scheduler exposes the assembled learning rate schedule (for reporting).
func (t *Trainer) Scheduler() LRScheduler { return t.scheduler }

// evaluate runs one unshuffled pass over the validation loader, returning
// the stacked output snapshot (rows in loader order) and the accuracy.
func (t *Trainer) evaluate(net *models.Network, val datasets.Loader) (*mat.Dense, float64, error) {
	net.Eval()
	defer net.Train()

	snapshot := mat.NewDense(val.NumExamples(), val.NumClasses(), nil)
	row := 0
	correct := 0

	val.Reset()
	for {
		batch, labels, err := val.NextBatch()
		if err != nil {
			return nil, 0, fmt.Errorf("validation batch: %v", err)
		}
		if batch == nil {
			break
		}

		out, err := net.Forward(batch)
		if err != nil {
			return nil, 0, fmt.Errorf("validation forward: %v", err)
		}

		correct += accuracy(out, labels)
		r, c := out.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				snapshot.Set(row, j, out.At(i, j))
			}
			row++
		}
	}

	if row != val.NumExamples() {
		return nil, 0, fmt.Errorf("validation pass yielded %d rows, expected %d", row, val.NumExamples())
	}
	return snapshot, float64(correct) / float64(val.NumExamples()), nil
}

// trainEpoch runs one pass over the training loader and returns the summed
// batch loss, the training accuracy, and the accumulated squared gradient
// norm (zero unless enabled).
func (t *Trainer) trainEpoch(net *models.Network, train datasets.Loader, lr float64) (float64, float64, float64, error) {
	net.Train()
	train.Reset()

	var sumLoss, gradNorm float64
	correct, total := 0, 0

	for {
		batch, labels, err := train.NextBatch()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("training batch: %v", err)
		}
		if batch == nil {
			break
		}

		out, err := net.Forward(batch)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("training forward: %v", err)
		}

		lossVal, err := t.loss.Forward(out, labels)
		if err != nil {
			return 0, 0, 0, err
		}
		sumLoss += lossVal
		correct += accuracy(out, labels)
		total += len(labels)

		grad, err := t.loss.Backward(out, labels)
		if err != nil {
			return 0, 0, 0, err
		}

		net.ZeroGrad()
		if _, err := net.Backward(grad); err != nil {
			return 0, 0, 0, err
		}

		if t.cfg.CollectGradNorm {
			for _, p := range net.Parameters() {
				raw := p.Grad.RawMatrix().Data
				for _, g := range raw {
					gradNorm += g * g
				}
			}
		}

		if err := t.optim.Step(net.Parameters(), lr); err != nil {
			return 0, 0, 0, err
		}
	}

	if total == 0 {
		return 0, 0, 0, fmt.Errorf("training loader yielded no batches")
	}
	return sumLoss, float64(correct) / float64(total), gradNorm, nil
}

// Run trains the network and assembles the run result. The output history
// records one snapshot per epoch plus the epoch-0 snapshot taken before any
// training step. Phi and beta are captured during the final epoch's
// validation pass through a scoped observation point that is released on
// every exit path.
func (t *Trainer) Run(net *models.Network, spec models.CaptureSpec, train, val datasets.Loader) (*RunResult, error) {
	if net == nil {
		return nil, fmt.Errorf("run: nil network")
	}

	history, err := tensor.NewOutputHistory(val.NumExamples(), val.NumClasses())
	if err != nil {
		return nil, err
	}

	result := &RunResult{History: history}

	// Epoch-0 snapshot: model outputs before the first training step.
	snapshot, acc, err := t.evaluate(net, val)
	if err != nil {
		return nil, fmt.Errorf("initial evaluation: %v", err)
	}
	if err := history.Append(snapshot); err != nil {
		return nil, err
	}
	result.ValAccuracy = append(result.ValAccuracy, acc)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		lr := t.scheduler.GetLR(epoch, t.cfg.LearningRate)
		result.LearningRates = append(result.LearningRates, lr)

		sumLoss, trainAcc, gradNorm, err := t.trainEpoch(net, train, lr)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %v", epoch, err)
		}
		result.TrainLoss = append(result.TrainLoss, sumLoss)
		result.TrainAccuracy = append(result.TrainAccuracy, trainAcc)
		if t.cfg.CollectGradNorm {
			result.GradNorms = append(result.GradNorms, gradNorm)
		}

		final := epoch == t.cfg.Epochs-1
		if final {
			if err := t.finalEvaluation(net, spec, val, result); err != nil {
				return nil, err
			}
		} else {
			snapshot, acc, err := t.evaluate(net, val)
			if err != nil {
				return nil, fmt.Errorf("epoch %d evaluation: %v", epoch, err)
			}
			if err := history.Append(snapshot); err != nil {
				return nil, err
			}
			result.ValAccuracy = append(result.ValAccuracy, acc)
		}

		if acc := result.ValAccuracy[len(result.ValAccuracy)-1]; acc > result.BestValAccuracy {
			result.BestValAccuracy = acc
		}

		if t.cfg.Verbose {
			log.Printf("[epoch %d] loss: %.5f | train acc: %.2f%% | val acc: %.2f%% | lr: %g",
				epoch+1, sumLoss, 100*trainAcc, 100*result.ValAccuracy[len(result.ValAccuracy)-1], lr)
		}
	}

	return result, nil
}

// finalEvaluation runs the last validation pass with the feature capture
// installed, then reads the classifier weights. The capture is released via
// defer so an evaluation error cannot leak the observation point.
func (t *Trainer) finalEvaluation(net *models.Network, spec models.CaptureSpec, val datasets.Loader, result *RunResult) error {
	obs, err := capture.Acquire(net, spec)
	if err != nil {
		return err
	}
	defer obs.Release()

	snapshot, acc, err := t.evaluate(net, val)
	if err != nil {
		return fmt.Errorf("final evaluation: %v", err)
	}
	if err := result.History.Append(snapshot); err != nil {
		return err
	}
	result.ValAccuracy = append(result.ValAccuracy, acc)

	phi, err := obs.Features()
	if err != nil {
		return err
	}
	rows, _ := phi.Dims()
	if rows != val.NumExamples() {
		return fmt.Errorf("captured %d feature rows, expected %d", rows, val.NumExamples())
	}
	result.Phi = phi

	beta, err := capture.Beta(net, spec)
	if err != nil {
		return err
	}
	result.Beta = beta
	return nil
}
