package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss computes a scalar training loss and its gradient with respect to the
// model logits.
type Loss interface {
	// Forward returns the batch loss for logits (batch x classes) against
	// integer class labels.
	Forward(logits *mat.Dense, labels []int) (float64, error)

	// Backward returns dLoss/dLogits for the same batch.
	Backward(logits *mat.Dense, labels []int) (*mat.Dense, error)

	// GetName returns the loss name for logging.
	GetName() string
}

// ParseLoss resolves a loss identifier from configuration.
func ParseLoss(name string) (Loss, error) {
	switch name {
	case "mse":
		return &MSESoftmaxLoss{}, nil
	case "cross-entropy":
		return &CrossEntropyLoss{}, nil
	default:
		return nil, fmt.Errorf("unknown loss function: %s", name)
	}
}

// softmaxRows computes a numerically stable row-wise softmax.
func softmaxRows(logits *mat.Dense) *mat.Dense {
	rows, cols := logits.Dims()
	out := mat.NewDense(rows, cols, nil)

	for i := 0; i < rows; i++ {
		max := logits.At(i, 0)
		for j := 1; j < cols; j++ {
			if v := logits.At(i, j); v > max {
				max = v
			}
		}

		var sum float64
		for j := 0; j < cols; j++ {
			e := math.Exp(logits.At(i, j) - max)
			out.Set(i, j, e)
			sum += e
		}
		for j := 0; j < cols; j++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}

func checkLabels(logits *mat.Dense, labels []int) error {
	rows, cols := logits.Dims()
	if len(labels) != rows {
		return fmt.Errorf("label count %d does not match batch size %d", len(labels), rows)
	}
	for i, l := range labels {
		if l < 0 || l >= cols {
			return fmt.Errorf("label %d at position %d outside class range [0, %d)", l, i, cols)
		}
	}
	return nil
}

// MSESoftmaxLoss is the mean squared error between the softmax of the logits
// and the one-hot label encoding, averaged over every matrix element.
type MSESoftmaxLoss struct{}

func (l *MSESoftmaxLoss) Forward(logits *mat.Dense, labels []int) (float64, error) {
	if err := checkLabels(logits, labels); err != nil {
		return 0, err
	}

	rows, cols := logits.Dims()
	probs := softmaxRows(logits)

	var sum float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			target := 0.0
			if labels[i] == j {
				target = 1.0
			}
			d := probs.At(i, j) - target
			sum += d * d
		}
	}
	return sum / float64(rows*cols), nil
}

func (l *MSESoftmaxLoss) Backward(logits *mat.Dense, labels []int) (*mat.Dense, error) {
	if err := checkLabels(logits, labels); err != nil {
		return nil, err
	}

	rows, cols := logits.Dims()
	probs := softmaxRows(logits)
	grad := mat.NewDense(rows, cols, nil)

	for i := 0; i < rows; i++ {
		// gp = dLoss/dprobs, then pull back through the softmax Jacobian:
		// dLoss/dz_j = p_j * (gp_j - Σ_k gp_k p_k).
		var inner float64
		gp := make([]float64, cols)
		for j := 0; j < cols; j++ {
			target := 0.0
			if labels[i] == j {
				target = 1.0
			}
			gp[j] = 2 * (probs.At(i, j) - target) / float64(rows*cols)
			inner += gp[j] * probs.At(i, j)
		}
		for j := 0; j < cols; j++ {
			grad.Set(i, j, probs.At(i, j)*(gp[j]-inner))
		}
	}
	return grad, nil
}

func (l *MSESoftmaxLoss) GetName() string {
	return "MSESoftmax"
}

// CrossEntropyLoss is the standard softmax cross entropy, averaged over the
// batch.
type CrossEntropyLoss struct{}

func (l *CrossEntropyLoss) Forward(logits *mat.Dense, labels []int) (float64, error) {
	if err := checkLabels(logits, labels); err != nil {
		return 0, err
	}

	rows, _ := logits.Dims()
	probs := softmaxRows(logits)

	var sum float64
	for i := 0; i < rows; i++ {
		p := probs.At(i, labels[i])
		if p < 1e-15 {
			p = 1e-15
		}
		sum -= math.Log(p)
	}
	return sum / float64(rows), nil
}

func (l *CrossEntropyLoss) Backward(logits *mat.Dense, labels []int) (*mat.Dense, error) {
	if err := checkLabels(logits, labels); err != nil {
		return nil, err
	}

	rows, cols := logits.Dims()
	probs := softmaxRows(logits)
	grad := mat.NewDense(rows, cols, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			target := 0.0
			if labels[i] == j {
				target = 1.0
			}
			grad.Set(i, j, (probs.At(i, j)-target)/float64(rows))
		}
	}
	return grad, nil
}

func (l *CrossEntropyLoss) GetName() string {
	return "CrossEntropy"
}

// accuracy counts argmax agreement between logits and labels.
func accuracy(logits *mat.Dense, labels []int) (correct int) {
	rows, cols := logits.Dims()
	for i := 0; i < rows && i < len(labels); i++ {
		maxIdx := 0
		maxVal := logits.At(i, 0)
		for j := 1; j < cols; j++ {
			if v := logits.At(i, j); v > maxVal {
				maxVal = v
				maxIdx = j
			}
		}
		if maxIdx == labels[i] {
			correct++
		}
	}
	return correct
}
