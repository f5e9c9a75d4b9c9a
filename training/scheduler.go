package training

import (
	"fmt"
	"math"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
// Schedulers are pure functions of the epoch so runs are reproducible.
type LRScheduler interface {
	// GetLR returns the learning rate for the given epoch.
	GetLR(epoch int, baseLR float64) float64

	// GetName returns the scheduler name for logging.
	GetName() string
}

// StepLRScheduler reduces the learning rate by a factor every stepSize
// epochs.
type StepLRScheduler struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler.
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 50
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.33
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(epoch int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// WarmupKind selects the shape of the warmup ramp.
type WarmupKind string

const (
	WarmupNone     WarmupKind = "none"
	WarmupConstant WarmupKind = "constant"
	WarmupLinear   WarmupKind = "linear"
	WarmupExp      WarmupKind = "exp"
)

// ParseWarmupKind resolves a warmup identifier from configuration.
func ParseWarmupKind(name string) (WarmupKind, error) {
	switch WarmupKind(name) {
	case WarmupNone, WarmupConstant, WarmupLinear, WarmupExp:
		return WarmupKind(name), nil
	default:
		return "", fmt.Errorf("unknown warmup scheme: %s", name)
	}
}

const (
	expWarmupRate      = 1.05
	linearWarmupRate   = 0.09 / 50
	constantWarmupSpan = 50
)

// WarmupScheduler ramps the learning rate from InitLR toward the base LR.
// The ramp length depends on the kind: exponential and linear warmups run
// until the ramp reaches the base LR, constant warmup holds InitLR for a
// fixed span, and "none" is a single epoch at the base LR.
type WarmupScheduler struct {
	Kind   WarmupKind
	InitLR float64
}

// NewWarmupScheduler creates a warmup ramp starting at initLR.
func NewWarmupScheduler(kind WarmupKind, initLR float64) (*WarmupScheduler, error) {
	if initLR <= 0 {
		return nil, fmt.Errorf("warmup initial learning rate must be positive, got %g", initLR)
	}
	return &WarmupScheduler{Kind: kind, InitLR: initLR}, nil
}

func (w *WarmupScheduler) GetLR(epoch int, baseLR float64) float64 {
	switch w.Kind {
	case WarmupExp:
		lr := w.InitLR * math.Pow(expWarmupRate, float64(epoch))
		return math.Min(lr, baseLR)
	case WarmupLinear:
		lr := w.InitLR + linearWarmupRate*float64(epoch)
		return math.Min(lr, baseLR)
	case WarmupConstant:
		return w.InitLR
	default:
		return baseLR
	}
}

// Span returns the number of epochs the warmup phase lasts before handing
// over to the decay schedule.
func (w *WarmupScheduler) Span(baseLR float64) int {
	switch w.Kind {
	case WarmupExp:
		if baseLR <= w.InitLR {
			return 1
		}
		return int(math.Log(baseLR/w.InitLR) / math.Log(expWarmupRate))
	case WarmupLinear:
		if baseLR <= w.InitLR {
			return 1
		}
		return int((baseLR - w.InitLR) / linearWarmupRate)
	case WarmupConstant:
		return constantWarmupSpan
	default:
		return 1
	}
}

func (w *WarmupScheduler) GetName() string {
	return fmt.Sprintf("Warmup(%s)", w.Kind)
}

// SequentialScheduler runs First for Milestone epochs, then hands over to
// Second with the epoch counter rebased to zero.
type SequentialScheduler struct {
	First     LRScheduler
	Second    LRScheduler
	Milestone int
}

// NewSequentialScheduler chains two schedulers at a milestone epoch.
func NewSequentialScheduler(first, second LRScheduler, milestone int) (*SequentialScheduler, error) {
	if first == nil || second == nil {
		return nil, fmt.Errorf("sequential scheduler requires two schedulers")
	}
	if milestone < 0 {
		return nil, fmt.Errorf("milestone must be non-negative, got %d", milestone)
	}
	return &SequentialScheduler{First: first, Second: second, Milestone: milestone}, nil
}

func (s *SequentialScheduler) GetLR(epoch int, baseLR float64) float64 {
	if epoch < s.Milestone {
		return s.First.GetLR(epoch, baseLR)
	}
	return s.Second.GetLR(epoch-s.Milestone, baseLR)
}

func (s *SequentialScheduler) GetName() string {
	return fmt.Sprintf("Sequential(%s, %s)", s.First.GetName(), s.Second.GetName())
}

// NoOpScheduler maintains a constant learning rate.
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}
