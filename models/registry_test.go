package models

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestGetUnknownModel(t *testing.T) {
	_, err := Get("resnet-9000")
	var unknownErr *UnknownModelError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Expected UnknownModelError, got %v", err)
	}
	if unknownErr.ID != "resnet-9000" {
		t.Errorf("Expected error to carry the model id, got %s", unknownErr.ID)
	}
}

func TestRegisteredArchitectures(t *testing.T) {
	expected := []string{
		"fc-relu", "fc-elu", "fc-tanh", "fc-hardtanh", "fc-softplus",
		"fc-tanh-depth1", "fc-tanh-depth2", "fc-tanh-depth3", "fc-tanh-depth4",
		"deeplinear", "regression",
	}

	for _, id := range expected {
		arch, err := Get(id)
		if err != nil {
			t.Errorf("Architecture %s not registered: %v", id, err)
			continue
		}
		if arch.Capture.Layer == "" {
			t.Errorf("Architecture %s has no capture layer", id)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	builder := func(inputDim, numClasses int, rng *rand.Rand) (*Network, error) {
		return NewNetwork("x"), nil
	}

	tests := []struct {
		name string
		arch Architecture
	}{
		{"empty id", Architecture{Build: builder, Capture: CaptureSpec{Layer: "act1"}}},
		{"nil builder", Architecture{ID: "x1", Capture: CaptureSpec{Layer: "act1"}}},
		{"no capture layer", Architecture{ID: "x2", Build: builder}},
		{"duplicate", Architecture{ID: "fc-tanh", Build: builder, Capture: CaptureSpec{Layer: "act1"}}},
	}

	for _, test := range tests {
		if err := Register(test.arch); err == nil {
			t.Errorf("%s: expected registration error", test.name)
		}
	}
}

func TestBuildOutputShapes(t *testing.T) {
	tests := []struct {
		id         string
		inputDim   int
		numClasses int
	}{
		{"fc-tanh", 784, 10},
		{"fc-relu", 32, 4},
		{"fc-tanh-depth1", 16, 3},
		{"fc-tanh-depth4", 16, 3},
		{"deeplinear", 50, 10},
		{"regression", 1, 1},
	}

	for _, test := range tests {
		net, err := Build(test.id, test.inputDim, test.numClasses, 3)
		if err != nil {
			t.Errorf("%s: build failed: %v", test.id, err)
			continue
		}

		out, err := net.Forward(mat.NewDense(3, test.inputDim, nil))
		if err != nil {
			t.Errorf("%s: forward failed: %v", test.id, err)
			continue
		}

		rows, cols := out.Dims()
		if rows != 3 || cols != test.numClasses {
			t.Errorf("%s: expected 3x%d output, got %dx%d", test.id, test.numClasses, rows, cols)
		}
	}
}

func TestBuildDeterministicInit(t *testing.T) {
	a, err := Build("fc-tanh", 8, 3, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := Build("fc-tanh", 8, 3, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pa, pb := a.Parameters(), b.Parameters()
	if len(pa) != len(pb) {
		t.Fatalf("Parameter count differs: %d vs %d", len(pa), len(pb))
	}
	for i := range pa {
		if !mat.Equal(pa[i].Value, pb[i].Value) {
			t.Errorf("Parameter %s differs across identically seeded builds", pa[i].Name)
		}
	}
}

func TestBuildCaptureLayerPresent(t *testing.T) {
	for _, id := range List() {
		arch, _ := Get(id)
		inputDim := 8
		if id == "deeplinear" {
			inputDim = 50
		}
		net, err := Build(id, inputDim, 3, 1)
		if err != nil {
			t.Errorf("%s: build failed: %v", id, err)
			continue
		}
		if !net.HasLayer(arch.Capture.Layer) {
			t.Errorf("%s: capture layer %s missing", id, arch.Capture.Layer)
		}
	}
}
