package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/models"
)

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates.
type Adam struct {
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64

	m    map[string]*mat.Dense
	v    map[string]*mat.Dense
	step int
}

// NewAdam creates an Adam optimizer with the usual hyperparameter ranges
// enforced.
func NewAdam(beta1, beta2, epsilon, weightDecay float64) (*Adam, error) {
	if beta1 < 0 || beta1 >= 1 {
		return nil, fmt.Errorf("beta1 must be in [0, 1), got %f", beta1)
	}
	if beta2 < 0 || beta2 >= 1 {
		return nil, fmt.Errorf("beta2 must be in [0, 1), got %f", beta2)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive, got %g", epsilon)
	}
	if weightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %f", weightDecay)
	}

	return &Adam{
		Beta1:       beta1,
		Beta2:       beta2,
		Epsilon:     epsilon,
		WeightDecay: weightDecay,
		m:           make(map[string]*mat.Dense),
		v:           make(map[string]*mat.Dense),
	}, nil
}

func (a *Adam) Step(params []*models.Param, lr float64) error {
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range params {
		rows, cols := p.Value.Dims()

		m, ok := a.m[p.Name]
		if !ok {
			m = mat.NewDense(rows, cols, nil)
			a.m[p.Name] = m
		}
		v, ok := a.v[p.Name]
		if !ok {
			v = mat.NewDense(rows, cols, nil)
			a.v[p.Name] = v
		}

		valueRaw := p.Value.RawMatrix().Data
		gradRaw := p.Grad.RawMatrix().Data
		mRaw := m.RawMatrix().Data
		vRaw := v.RawMatrix().Data

		for i := range valueRaw {
			g := gradRaw[i]
			if a.WeightDecay > 0 {
				g += a.WeightDecay * valueRaw[i]
			}

			mRaw[i] = a.Beta1*mRaw[i] + (1-a.Beta1)*g
			vRaw[i] = a.Beta2*vRaw[i] + (1-a.Beta2)*g*g

			mHat := mRaw[i] / bc1
			vHat := vRaw[i] / bc2
			valueRaw[i] -= lr * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
	return nil
}

func (a *Adam) GetName() string {
	return "Adam"
}
