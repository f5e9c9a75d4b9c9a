package basis

import "fmt"

// DimensionMismatchError reports inconsistent shapes between the feature
// matrix, the weight matrix, and the output history. It is fatal: no
// decomposition is attempted when shapes disagree.
type DimensionMismatchError struct {
	What     string
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.What, e.Expected, e.Got)
}

// DegenerateDirectionError reports a basis direction whose normalizer is too
// close to zero to divide by. It is recoverable: the direction is skipped
// and the remaining directions are still computed.
type DegenerateDirectionError struct {
	Index      int
	Normalizer float64
}

func (e *DegenerateDirectionError) Error() string {
	return fmt.Sprintf("degenerate basis direction %d: normalizer %g below tolerance", e.Index, e.Normalizer)
}
