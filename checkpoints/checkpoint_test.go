package checkpoints

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/models"
)

func TestCheckpointJSONRoundTrip(t *testing.T) {
	net, err := models.Build("fc-tanh-depth1", 16, 4, 7)
	if err != nil {
		t.Fatalf("Failed to build network: %v", err)
	}

	state := TrainingState{Epoch: 42, LearningRate: 0.033, BestAccuracy: 0.91}
	cp, err := ExtractCheckpoint(net, 16, state)
	if err != nil {
		t.Fatalf("Failed to extract checkpoint: %v", err)
	}
	if cp.Architecture != "fc-tanh-depth1" {
		t.Errorf("Unexpected architecture: %s", cp.Architecture)
	}
	if cp.NumClasses != 4 {
		t.Errorf("Expected 4 classes, got %d", cp.NumClasses)
	}

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := SaveCheckpoint(cp, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if loaded.TrainingState != state {
		t.Errorf("Training state mismatch: %+v", loaded.TrainingState)
	}
	if loaded.Metadata.Framework != "go-basis" {
		t.Errorf("Expected framework metadata, got %q", loaded.Metadata.Framework)
	}

	// Restoring into a differently seeded copy must reproduce the original
	// network's outputs exactly.
	restored, err := models.Build("fc-tanh-depth1", 16, 4, 99)
	if err != nil {
		t.Fatalf("Failed to build network: %v", err)
	}
	if err := RestoreCheckpoint(loaded, restored); err != nil {
		t.Fatalf("Failed to restore checkpoint: %v", err)
	}

	input := mat.NewDense(3, 16, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 16; j++ {
			input.Set(i, j, float64(i*16+j)/48.0)
		}
	}
	want, err := net.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	got, err := restored.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !mat.EqualApprox(want, got, 1e-15) {
		t.Error("Restored network does not reproduce original outputs")
	}
}

func TestRestoreCheckpointShapeMismatch(t *testing.T) {
	net, err := models.Build("fc-tanh-depth1", 16, 4, 7)
	if err != nil {
		t.Fatalf("Failed to build network: %v", err)
	}
	cp, err := ExtractCheckpoint(net, 16, TrainingState{})
	if err != nil {
		t.Fatalf("Failed to extract checkpoint: %v", err)
	}

	wider, err := models.Build("fc-tanh-depth1", 32, 4, 7)
	if err != nil {
		t.Fatalf("Failed to build network: %v", err)
	}
	if err := RestoreCheckpoint(cp, wider); err == nil {
		t.Error("Expected shape mismatch error")
	}

	cp.Weights = cp.Weights[:1]
	if err := RestoreCheckpoint(cp, net); err == nil {
		t.Error("Expected missing parameter error")
	}
}

func TestRunArtifactRoundTrip(t *testing.T) {
	phi := mat.NewDense(4, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	})
	beta := mat.NewDense(2, 3, []float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6})
	snapshots := []*mat.Dense{
		mat.NewDense(4, 2, []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}),
		mat.NewDense(4, 2, []float64{0.9, 0.1, 0.8, 0.2, 0.3, 0.7, 0.1, 0.9}),
		mat.NewDense(4, 2, []float64{0.99, 0.01, 0.95, 0.05, 0.1, 0.9, 0.02, 0.98}),
	}

	artifact := &RunArtifact{
		Model:      "fc-relu",
		Dataset:    "synthetic",
		Epochs:     5,
		Seed:       42,
		Features:   TensorFromDense(phi),
		Classifier: TensorFromDense(beta),
		Outputs: []*Tensor{
			TensorFromDense(snapshots[0]),
			TensorFromDense(snapshots[1]),
			TensorFromDense(snapshots[2]),
		},
		SingularValues: []float64{3.5, 1.2, 0.01},
		Coefficients: []CoefficientSeries{
			{Direction: 1, Values: []float64{0.0, 0.4, 0.9}},
			{Direction: 2, Values: []float64{0.0, 0.1, 0.2}},
		},
		Metrics: []MetricSeries{
			{Name: "train_loss", Values: []float64{0.7, 0.4, 0.2}},
			{Name: "val_acc", Values: []float64{0.3, 0.6, 0.8}},
		},
	}

	path := filepath.Join(t.TempDir(), "run.artifact")
	if err := SaveRunArtifact(artifact, path); err != nil {
		t.Fatalf("Failed to save artifact: %v", err)
	}

	loaded, err := LoadRunArtifact(path)
	if err != nil {
		t.Fatalf("Failed to load artifact: %v", err)
	}

	if loaded.Model != "fc-relu" || loaded.Dataset != "synthetic" {
		t.Errorf("Metadata mismatch: %s / %s", loaded.Model, loaded.Dataset)
	}
	if loaded.Epochs != 5 || loaded.Seed != 42 {
		t.Errorf("Run parameters mismatch: epochs %d, seed %d", loaded.Epochs, loaded.Seed)
	}
	if loaded.Created.IsZero() {
		t.Error("Created timestamp not set on save")
	}

	gotPhi, err := loaded.Features.Dense()
	if err != nil {
		t.Fatalf("Features tensor invalid: %v", err)
	}
	if !mat.Equal(phi, gotPhi) {
		t.Error("Feature matrix changed across round trip")
	}
	gotBeta, err := loaded.Classifier.Dense()
	if err != nil {
		t.Fatalf("Classifier tensor invalid: %v", err)
	}
	if !mat.Equal(beta, gotBeta) {
		t.Error("Classifier matrix changed across round trip")
	}

	hist, err := loaded.OutputHistory()
	if err != nil {
		t.Fatalf("Output history invalid: %v", err)
	}
	if hist.Epochs() != len(snapshots) {
		t.Fatalf("Snapshot count changed across round trip: got %d, want %d", hist.Epochs(), len(snapshots))
	}
	for e, want := range snapshots {
		got, err := hist.At(e)
		if err != nil {
			t.Fatalf("Snapshot %d missing: %v", e, err)
		}
		if !mat.Equal(want, got) {
			t.Errorf("Snapshot %d changed across round trip", e)
		}
	}

	for i, v := range artifact.SingularValues {
		if math.Abs(loaded.SingularValues[i]-v) > 0 {
			t.Errorf("Singular value %d changed: %g vs %g", i, v, loaded.SingularValues[i])
		}
	}
	if len(loaded.Coefficients) != 2 || loaded.Coefficients[0].Direction != 1 {
		t.Errorf("Coefficient series mismatch: %+v", loaded.Coefficients)
	}
	if len(loaded.Metrics) != 2 || loaded.Metrics[1].Name != "val_acc" {
		t.Errorf("Metric series mismatch: %+v", loaded.Metrics)
	}
}

func TestTensorValidation(t *testing.T) {
	bad := &Tensor{Rows: 2, Cols: 3, Values: []float64{1, 2}}
	if _, err := bad.Dense(); err == nil {
		t.Error("Expected error for value count mismatch")
	}
	empty := &Tensor{}
	if _, err := empty.Dense(); err == nil {
		t.Error("Expected error for empty shape")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalRunArtifact([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("Expected parse error for malformed input")
	}
}
