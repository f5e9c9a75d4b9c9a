package models

import (
	"fmt"
	"math/rand"
	"sort"
)

// UnknownModelError reports a model identifier with no registered
// architecture. It surfaces at configuration time, before any training.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.ID)
}

// CaptureSpec names the observation point used to collect penultimate-layer
// features, and optionally the parameter holding the final classifier
// weights. An empty BetaParam means "last learnable weight matrix".
type CaptureSpec struct {
	Layer     string
	BetaParam string
}

// Builder constructs a network for the given input width and class count.
type Builder func(inputDim, numClasses int, rng *rand.Rand) (*Network, error)

// Architecture couples a model identifier with its builder and its feature
// capture point. Registration replaces identifier string-matching scattered
// through the training code: an unregistered identifier fails before any
// training starts, and a registered one is guaranteed a capture point.
type Architecture struct {
	ID      string
	Build   Builder
	Capture CaptureSpec
}

var registry = make(map[string]Architecture)

// Register adds an architecture to the registry. It fails on duplicate or
// incomplete registrations.
func Register(arch Architecture) error {
	if arch.ID == "" {
		return fmt.Errorf("architecture ID must not be empty")
	}
	if arch.Build == nil {
		return fmt.Errorf("architecture %s has no builder", arch.ID)
	}
	if arch.Capture.Layer == "" {
		return fmt.Errorf("architecture %s has no capture layer", arch.ID)
	}
	if _, exists := registry[arch.ID]; exists {
		return fmt.Errorf("architecture %s already registered", arch.ID)
	}

	registry[arch.ID] = arch
	return nil
}

// Get looks up a registered architecture.
func Get(id string) (Architecture, error) {
	arch, ok := registry[id]
	if !ok {
		return Architecture{}, &UnknownModelError{ID: id}
	}
	return arch, nil
}

// List returns the registered model identifiers in sorted order.
func List() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build constructs a network for a registered architecture with a seeded
// parameter initialization, then verifies the capture point actually exists
// in the built network.
func Build(id string, inputDim, numClasses int, seed int64) (*Network, error) {
	arch, err := Get(id)
	if err != nil {
		return nil, err
	}

	net, err := arch.Build(inputDim, numClasses, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("build %s: %v", id, err)
	}
	net.arch = id

	if !net.HasLayer(arch.Capture.Layer) {
		return nil, fmt.Errorf("architecture %s: capture layer %s missing from built network", id, arch.Capture.Layer)
	}
	if arch.Capture.BetaParam != "" {
		if _, err := net.NamedParam(arch.Capture.BetaParam); err != nil {
			return nil, fmt.Errorf("architecture %s: %v", id, err)
		}
	}

	return net, nil
}

// fullyConnected builds a stack of Linear+activation blocks followed by a
// final Linear classifier. The capture point is the last activation: its
// output is the penultimate feature vector feeding the classifier.
func fullyConnected(widths []int, kind ActivationKind, bias bool) Builder {
	return func(inputDim, numClasses int, rng *rand.Rand) (*Network, error) {
		net := NewNetwork("")
		prev := inputDim
		for i, w := range widths {
			fc, err := NewLinear(fmt.Sprintf("fc%d", i+1), prev, w, bias, rng)
			if err != nil {
				return nil, err
			}
			if err := net.Add(fc.name, fc); err != nil {
				return nil, err
			}
			act := NewActivation(fmt.Sprintf("act%d", i+1), kind)
			if err := net.Add(act.name, act); err != nil {
				return nil, err
			}
			prev = w
		}

		out, err := NewLinear("out", prev, numClasses, bias, rng)
		if err != nil {
			return nil, err
		}
		if err := net.Add(out.name, out); err != nil {
			return nil, err
		}
		return net, nil
	}
}

// deepLinear builds a purely linear network: an input projection to width,
// depth-2 width x width layers, and a linear classifier. No activations and
// no biases.
func deepLinear(depth, width int) Builder {
	return func(inputDim, numClasses int, rng *rand.Rand) (*Network, error) {
		if depth < 2 {
			return nil, fmt.Errorf("deep linear network needs depth >= 2, got %d", depth)
		}

		net := NewNetwork("")
		prev := inputDim
		for i := 0; i < depth-1; i++ {
			fc, err := NewLinearNormal(fmt.Sprintf("linear%d", i+1), prev, width, false, 1.0, rng)
			if err != nil {
				return nil, err
			}
			if err := net.Add(fc.name, fc); err != nil {
				return nil, err
			}
			prev = width
		}

		out, err := NewLinearNormal("out", prev, numClasses, false, 1.0, rng)
		if err != nil {
			return nil, err
		}
		if err := net.Add(out.name, out); err != nil {
			return nil, err
		}
		return net, nil
	}
}

// oneLayer builds the single-hidden-layer tanh network used for regression
// probes: a gained Xavier-normal input layer, tanh, and a bias-free readout.
func oneLayer(hidden int, gain float64) Builder {
	return func(inputDim, numClasses int, rng *rand.Rand) (*Network, error) {
		fc, err := NewLinearNormal("fc1", inputDim, hidden, true, gain, rng)
		if err != nil {
			return nil, err
		}

		net := NewNetwork("")
		if err := net.Add(fc.name, fc); err != nil {
			return nil, err
		}
		if err := net.Add("act1", NewActivation("act1", Tanh)); err != nil {
			return nil, err
		}

		out, err := NewLinearNormal("out", hidden, numClasses, false, 1.0, rng)
		if err != nil {
			return nil, err
		}
		if err := net.Add(out.name, out); err != nil {
			return nil, err
		}
		return net, nil
	}
}

func mustRegister(arch Architecture) {
	if err := Register(arch); err != nil {
		panic(err)
	}
}

func init() {
	fcCapture := CaptureSpec{Layer: "act2"}

	// Fully-connected families, two hidden layers of 200 units.
	for _, a := range []struct {
		id   string
		kind ActivationKind
	}{
		{"fc-relu", ReLU},
		{"fc-elu", ELU},
		{"fc-tanh", Tanh},
		{"fc-hardtanh", Hardtanh},
		{"fc-softplus", Softplus},
	} {
		mustRegister(Architecture{
			ID:      a.id,
			Build:   fullyConnected([]int{200, 200}, a.kind, true),
			Capture: fcCapture,
		})
	}

	// Depth sweep for the tanh family.
	for depth := 1; depth <= 4; depth++ {
		widths := make([]int, depth)
		for i := range widths {
			widths[i] = 200
		}
		mustRegister(Architecture{
			ID:      fmt.Sprintf("fc-tanh-depth%d", depth),
			Build:   fullyConnected(widths, Tanh, true),
			Capture: CaptureSpec{Layer: fmt.Sprintf("act%d", depth)},
		})
	}

	mustRegister(Architecture{
		ID:      "deeplinear",
		Build:   deepLinear(20, 50),
		Capture: CaptureSpec{Layer: "linear19"},
	})

	mustRegister(Architecture{
		ID:      "regression",
		Build:   oneLayer(100, 1.9),
		Capture: CaptureSpec{Layer: "act1", BetaParam: "out.weight"},
	})
}
