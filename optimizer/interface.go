package optimizer

import "github.com/tsawler/go-basis/models"

// Optimizer updates model parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update with the given learning rate. Gradients are
	// consumed as-is; callers zero them between steps.
	Step(params []*models.Param, lr float64) error

	// GetName returns the optimizer name for logging.
	GetName() string
}
