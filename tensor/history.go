package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OutputHistory stacks per-epoch model output snapshots into a rank-3 tensor
// of shape (numExamples, numClasses, numEpochs). Snapshots are appended along
// the epoch axis and are immutable once recorded.
//
// The example ordering of every snapshot must be identical: snapshots are
// collected over an unshuffled validation pass, so row i of every epoch slice
// refers to the same validation example.
type OutputHistory struct {
	numExamples int
	numClasses  int
	epochs      []*mat.Dense
}

// NewOutputHistory creates an empty history for the given snapshot shape.
func NewOutputHistory(numExamples, numClasses int) (*OutputHistory, error) {
	if numExamples <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("invalid output history shape: %dx%d", numExamples, numClasses)
	}

	return &OutputHistory{
		numExamples: numExamples,
		numClasses:  numClasses,
	}, nil
}

// Append records one epoch's output snapshot. The snapshot is copied, so the
// caller may reuse its buffer afterwards.
func (oh *OutputHistory) Append(snapshot *mat.Dense) error {
	if snapshot == nil {
		return fmt.Errorf("cannot append nil snapshot")
	}

	r, c := snapshot.Dims()
	if r != oh.numExamples || c != oh.numClasses {
		return fmt.Errorf("snapshot shape mismatch: expected %dx%d, got %dx%d",
			oh.numExamples, oh.numClasses, r, c)
	}

	oh.epochs = append(oh.epochs, mat.DenseCopyOf(snapshot))
	return nil
}

// Epochs returns the number of recorded snapshots (the epoch-axis length).
func (oh *OutputHistory) Epochs() int {
	return len(oh.epochs)
}

// NumExamples returns the example-axis length.
func (oh *OutputHistory) NumExamples() int {
	return oh.numExamples
}

// NumClasses returns the class-axis length.
func (oh *OutputHistory) NumClasses() int {
	return oh.numClasses
}

// At returns the snapshot recorded for epoch e. The returned matrix is the
// stored slice itself; callers must not mutate it.
func (oh *OutputHistory) At(e int) (*mat.Dense, error) {
	if e < 0 || e >= len(oh.epochs) {
		return nil, fmt.Errorf("epoch index %d out of range [0, %d)", e, len(oh.epochs))
	}
	return oh.epochs[e], nil
}

// SetEpoch replaces the snapshot at epoch e. Used to backfill the epoch-0
// snapshot that is measured before the first training step.
func (oh *OutputHistory) SetEpoch(e int, snapshot *mat.Dense) error {
	if e < 0 || e >= len(oh.epochs) {
		return fmt.Errorf("epoch index %d out of range [0, %d)", e, len(oh.epochs))
	}

	r, c := snapshot.Dims()
	if r != oh.numExamples || c != oh.numClasses {
		return fmt.Errorf("snapshot shape mismatch: expected %dx%d, got %dx%d",
			oh.numExamples, oh.numClasses, r, c)
	}

	oh.epochs[e] = mat.DenseCopyOf(snapshot)
	return nil
}
