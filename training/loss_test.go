package training

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestParseLoss(t *testing.T) {
	mse, err := ParseLoss("mse")
	if err != nil {
		t.Fatalf("ParseLoss(mse) failed: %v", err)
	}
	if mse.GetName() != "MSESoftmax" {
		t.Errorf("Unexpected loss name: %s", mse.GetName())
	}

	ce, err := ParseLoss("cross-entropy")
	if err != nil {
		t.Fatalf("ParseLoss(cross-entropy) failed: %v", err)
	}
	if ce.GetName() != "CrossEntropy" {
		t.Errorf("Unexpected loss name: %s", ce.GetName())
	}

	if _, err := ParseLoss("hinge"); err == nil {
		t.Error("Expected error for unknown loss")
	}
}

func TestSoftmaxRows(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{
		0, 0, 0,
		1000, 1000, 999, // large values must not overflow
	})
	probs := softmaxRows(logits)

	for i := 0; i < 2; i++ {
		var sum float64
		for j := 0; j < 3; j++ {
			sum += probs.At(i, j)
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("Row %d probabilities sum to %f", i, sum)
		}
	}
	if math.Abs(probs.At(0, 0)-1.0/3.0) > 1e-12 {
		t.Errorf("Uniform logits should give uniform probabilities, got %f", probs.At(0, 0))
	}
	if probs.At(1, 0) <= probs.At(1, 2) {
		t.Error("Larger logit should get larger probability")
	}
}

func TestMSESoftmaxKnownValue(t *testing.T) {
	// Uniform logits over 2 classes give probabilities (0.5, 0.5); against a
	// one-hot target each element contributes 0.25.
	logits := mat.NewDense(1, 2, []float64{0, 0})
	loss := &MSESoftmaxLoss{}

	val, err := loss.Forward(logits, []int{0})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if math.Abs(val-0.25) > 1e-12 {
		t.Errorf("Expected loss 0.25, got %f", val)
	}
}

func TestCrossEntropyKnownValue(t *testing.T) {
	logits := mat.NewDense(1, 2, []float64{0, 0})
	loss := &CrossEntropyLoss{}

	val, err := loss.Forward(logits, []int{1})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if math.Abs(val-math.Ln2) > 1e-12 {
		t.Errorf("Expected loss ln(2), got %f", val)
	}
}

// gradientCheck verifies Backward against central finite differences of
// Forward at every logit position.
func gradientCheck(t *testing.T, loss Loss, logits *mat.Dense, labels []int) {
	t.Helper()

	grad, err := loss.Backward(logits, labels)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const h = 1e-5
	rows, cols := logits.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			orig := logits.At(i, j)

			logits.Set(i, j, orig+h)
			plus, err := loss.Forward(logits, labels)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			logits.Set(i, j, orig-h)
			minus, err := loss.Forward(logits, labels)
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			logits.Set(i, j, orig)

			numeric := (plus - minus) / (2 * h)
			if math.Abs(grad.At(i, j)-numeric) > 1e-6 {
				t.Errorf("Gradient mismatch at (%d,%d): analytic %g, numeric %g",
					i, j, grad.At(i, j), numeric)
			}
		}
	}
}

func TestMSESoftmaxGradientCheck(t *testing.T) {
	logits := mat.NewDense(3, 4, []float64{
		0.5, -1.2, 0.3, 0.9,
		2.0, 0.1, -0.4, 0.6,
		-0.7, 1.1, 0.2, -1.5,
	})
	gradientCheck(t, &MSESoftmaxLoss{}, logits, []int{2, 0, 3})
}

func TestCrossEntropyGradientCheck(t *testing.T) {
	logits := mat.NewDense(3, 4, []float64{
		0.5, -1.2, 0.3, 0.9,
		2.0, 0.1, -0.4, 0.6,
		-0.7, 1.1, 0.2, -1.5,
	})
	gradientCheck(t, &CrossEntropyLoss{}, logits, []int{1, 0, 2})
}

func TestLossLabelValidation(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{0, 0, 0, 0, 0, 0})
	for _, loss := range []Loss{&MSESoftmaxLoss{}, &CrossEntropyLoss{}} {
		if _, err := loss.Forward(logits, []int{0}); err == nil {
			t.Errorf("%s: expected error for label count mismatch", loss.GetName())
		}
		if _, err := loss.Forward(logits, []int{0, 3}); err == nil {
			t.Errorf("%s: expected error for out-of-range label", loss.GetName())
		}
		if _, err := loss.Backward(logits, []int{0, -1}); err == nil {
			t.Errorf("%s: expected error for negative label", loss.GetName())
		}
	}
}

func TestAccuracy(t *testing.T) {
	logits := mat.NewDense(3, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
	})
	if got := accuracy(logits, []int{0, 1, 1}); got != 2 {
		t.Errorf("Expected 2 correct, got %d", got)
	}
}
