// Package checkpoints persists model state and run artifacts. Model weights
// travel as JSON checkpoints; completed runs are packed into a compact
// binary artifact holding the analysis inputs and results.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/models"
)

// Checkpoint represents a complete model state with training metadata.
type Checkpoint struct {
	Architecture string         `json:"architecture"`
	InputDim     int            `json:"input_dim"`
	NumClasses   int            `json:"num_classes"`
	Weights      []WeightTensor `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter with its data in row-major
// order.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState captures training progress at save time.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	LearningRate float64 `json:"learning_rate"`
	BestAccuracy float64 `json:"best_accuracy"`
}

// CheckpointMetadata contains checkpoint provenance.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// ExtractCheckpoint snapshots a network's parameters into a checkpoint.
func ExtractCheckpoint(net *models.Network, inputDim int, state TrainingState) (*Checkpoint, error) {
	if net == nil {
		return nil, fmt.Errorf("extract checkpoint: nil network")
	}

	params := net.Parameters()
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		r, c := p.Value.Dims()
		data := make([]float64, r*c)
		copy(data, p.Value.RawMatrix().Data)
		weights = append(weights, WeightTensor{
			Name:  p.Name,
			Shape: []int{r, c},
			Data:  data,
		})
	}

	numClasses := 0
	if last, err := net.LastWeight(); err == nil {
		numClasses, _ = last.Value.Dims()
	}

	return &Checkpoint{
		Architecture:  net.Arch(),
		InputDim:      inputDim,
		NumClasses:    numClasses,
		Weights:       weights,
		TrainingState: state,
	}, nil
}

// RestoreCheckpoint copies checkpoint weights back into a network built with
// the same architecture. Shapes are verified parameter by parameter.
func RestoreCheckpoint(cp *Checkpoint, net *models.Network) error {
	if cp == nil || net == nil {
		return fmt.Errorf("restore checkpoint: nil argument")
	}

	byName := make(map[string]WeightTensor, len(cp.Weights))
	for _, w := range cp.Weights {
		byName[w.Name] = w
	}

	for _, p := range net.Parameters() {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint has no weights for parameter %s", p.Name)
		}
		r, c := p.Value.Dims()
		if len(w.Shape) != 2 || w.Shape[0] != r || w.Shape[1] != c {
			return fmt.Errorf("parameter %s: checkpoint shape %v does not match %dx%d", p.Name, w.Shape, r, c)
		}
		if len(w.Data) != r*c {
			return fmt.Errorf("parameter %s: %d values for shape %v", p.Name, len(w.Data), w.Shape)
		}
		p.Value.Copy(mat.NewDense(r, c, w.Data))
	}
	return nil
}

// SaveCheckpoint writes a checkpoint as pretty-printed JSON.
func SaveCheckpoint(cp *Checkpoint, path string) error {
	if cp.Metadata.Framework == "" {
		cp.Metadata.Framework = "go-basis"
		cp.Metadata.Version = "1.0.0"
		cp.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// LoadCheckpoint reads a JSON checkpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &cp, nil
}
