package optimizer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/models"
)

// SGD implements stochastic gradient descent with classical momentum and
// decoupled L2 weight decay:
//
//	v = momentum*v + grad + weightDecay*w
//	w = w - lr*v
type SGD struct {
	Momentum    float64
	WeightDecay float64

	velocity map[string]*mat.Dense
}

// NewSGD creates an SGD optimizer. Momentum 0 disables the velocity buffer.
func NewSGD(momentum, weightDecay float64) (*SGD, error) {
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %f", momentum)
	}
	if weightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %f", weightDecay)
	}

	return &SGD{
		Momentum:    momentum,
		WeightDecay: weightDecay,
		velocity:    make(map[string]*mat.Dense),
	}, nil
}

func (s *SGD) Step(params []*models.Param, lr float64) error {
	for _, p := range params {
		rows, cols := p.Value.Dims()

		var update mat.Dense
		update.CloneFrom(p.Grad)
		if s.WeightDecay > 0 {
			var decay mat.Dense
			decay.Scale(s.WeightDecay, p.Value)
			update.Add(&update, &decay)
		}

		if s.Momentum > 0 {
			v, ok := s.velocity[p.Name]
			if !ok {
				v = mat.NewDense(rows, cols, nil)
				s.velocity[p.Name] = v
			}
			v.Scale(s.Momentum, v)
			v.Add(v, &update)
			update.CloneFrom(v)
		}

		update.Scale(lr, &update)
		p.Value.Sub(p.Value, &update)
	}
	return nil
}

func (s *SGD) GetName() string {
	return "SGD"
}
