package models

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a named trainable parameter with its gradient accumulator.
// Gradients are accumulated by Backward calls and consumed by an optimizer.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Module is the interface all network layers implement.
type Module interface {
	// Forward computes the layer output for a batch (rows are examples).
	Forward(input *mat.Dense) (*mat.Dense, error)

	// Backward takes the gradient of the loss with respect to the layer
	// output, accumulates parameter gradients, and returns the gradient
	// with respect to the layer input.
	Backward(grad *mat.Dense) (*mat.Dense, error)

	// Parameters returns the trainable parameters, if any.
	Parameters() []*Param

	Train()
	Eval()
	IsTraining() bool
}

// Linear implements a fully connected layer: y = xWᵀ + b.
// The weight is stored as (outputSize x inputSize) so that the final
// classifier layer's weight matrix has shape (numClasses x featureDim).
type Linear struct {
	name     string
	weight   *Param
	bias     *Param
	input    *mat.Dense
	training bool
}

// NewLinear creates a linear layer with Xavier/Glorot uniform initialization:
// W ~ U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func NewLinear(name string, inputSize, outputSize int, bias bool, rng *rand.Rand) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("invalid linear layer size %dx%d", inputSize, outputSize)
	}

	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	data := make([]float64, outputSize*inputSize)
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}

	l := &Linear{
		name: name,
		weight: &Param{
			Name:  name + ".weight",
			Value: mat.NewDense(outputSize, inputSize, data),
			Grad:  mat.NewDense(outputSize, inputSize, nil),
		},
		training: true,
	}

	if bias {
		l.bias = &Param{
			Name:  name + ".bias",
			Value: mat.NewDense(1, outputSize, nil),
			Grad:  mat.NewDense(1, outputSize, nil),
		}
	}

	return l, nil
}

// NewLinearNormal creates a linear layer with Xavier normal initialization
// scaled by gain, used by the one-layer regression architecture.
func NewLinearNormal(name string, inputSize, outputSize int, bias bool, gain float64, rng *rand.Rand) (*Linear, error) {
	l, err := NewLinear(name, inputSize, outputSize, bias, rng)
	if err != nil {
		return nil, err
	}

	std := gain * math.Sqrt(2.0/float64(inputSize+outputSize))
	raw := l.weight.Value.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = rng.NormFloat64() * std
	}
	return l, nil
}

func (l *Linear) Forward(input *mat.Dense) (*mat.Dense, error) {
	_, c := input.Dims()
	_, in := l.weight.Value.Dims()
	if c != in {
		return nil, fmt.Errorf("linear layer %s: input width %d, expected %d", l.name, c, in)
	}

	if l.training {
		l.input = input
	}

	var out mat.Dense
	out.Mul(input, l.weight.Value.T())

	if l.bias != nil {
		rows, cols := out.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out.Set(i, j, out.At(i, j)+l.bias.Value.At(0, j))
			}
		}
	}

	return &out, nil
}

func (l *Linear) Backward(grad *mat.Dense) (*mat.Dense, error) {
	if l.input == nil {
		return nil, fmt.Errorf("linear layer %s: backward before forward", l.name)
	}

	// dW += gradᵀ · x
	var dw mat.Dense
	dw.Mul(grad.T(), l.input)
	l.weight.Grad.Add(l.weight.Grad, &dw)

	if l.bias != nil {
		rows, cols := grad.Dims()
		for j := 0; j < cols; j++ {
			var sum float64
			for i := 0; i < rows; i++ {
				sum += grad.At(i, j)
			}
			l.bias.Grad.Set(0, j, l.bias.Grad.At(0, j)+sum)
		}
	}

	// dx = grad · W
	var dx mat.Dense
	dx.Mul(grad, l.weight.Value)
	return &dx, nil
}

func (l *Linear) Parameters() []*Param {
	if l.bias != nil {
		return []*Param{l.weight, l.bias}
	}
	return []*Param{l.weight}
}

func (l *Linear) Train()           { l.training = true }
func (l *Linear) Eval()            { l.training = false }
func (l *Linear) IsTraining() bool { return l.training }

// ActivationKind identifies an elementwise activation function.
type ActivationKind int

const (
	ReLU ActivationKind = iota
	Tanh
	ELU
	Hardtanh
	Softplus
	Sigmoid
	LeakyReLU
	SELU
)

func (k ActivationKind) String() string {
	switch k {
	case ReLU:
		return "ReLU"
	case Tanh:
		return "Tanh"
	case ELU:
		return "ELU"
	case Hardtanh:
		return "Hardtanh"
	case Softplus:
		return "Softplus"
	case Sigmoid:
		return "Sigmoid"
	case LeakyReLU:
		return "LeakyReLU"
	case SELU:
		return "SELU"
	default:
		return "Unknown"
	}
}

// ActivationKindByName resolves an activation identifier used by the
// architecture registry.
func ActivationKindByName(name string) (ActivationKind, error) {
	switch name {
	case "relu":
		return ReLU, nil
	case "tanh":
		return Tanh, nil
	case "elu":
		return ELU, nil
	case "hardtanh":
		return Hardtanh, nil
	case "softplus":
		return Softplus, nil
	case "sigmoid":
		return Sigmoid, nil
	case "leaky_relu":
		return LeakyReLU, nil
	case "selu":
		return SELU, nil
	default:
		return 0, fmt.Errorf("unknown activation function: %s", name)
	}
}

const (
	seluAlpha  = 1.6732632423543772
	seluLambda = 1.0507009873554805
)

// Activation is an elementwise activation layer.
type Activation struct {
	name     string
	kind     ActivationKind
	input    *mat.Dense
	training bool
}

// NewActivation creates an activation layer of the given kind.
func NewActivation(name string, kind ActivationKind) *Activation {
	return &Activation{name: name, kind: kind, training: true}
}

func (a *Activation) apply(x float64) float64 {
	switch a.kind {
	case ReLU:
		return math.Max(0, x)
	case Tanh:
		return math.Tanh(x)
	case ELU:
		if x > 0 {
			return x
		}
		return math.Exp(x) - 1
	case Hardtanh:
		return math.Max(-1, math.Min(1, x))
	case Softplus:
		return math.Log1p(math.Exp(x))
	case Sigmoid:
		return 1.0 / (1.0 + math.Exp(-x))
	case LeakyReLU:
		if x > 0 {
			return x
		}
		return 0.01 * x
	case SELU:
		if x > 0 {
			return seluLambda * x
		}
		return seluLambda * seluAlpha * (math.Exp(x) - 1)
	default:
		return x
	}
}

func (a *Activation) derivative(x float64) float64 {
	switch a.kind {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case Tanh:
		th := math.Tanh(x)
		return 1 - th*th
	case ELU:
		if x > 0 {
			return 1
		}
		return math.Exp(x)
	case Hardtanh:
		if x > -1 && x < 1 {
			return 1
		}
		return 0
	case Softplus:
		return 1.0 / (1.0 + math.Exp(-x))
	case Sigmoid:
		s := 1.0 / (1.0 + math.Exp(-x))
		return s * (1 - s)
	case LeakyReLU:
		if x > 0 {
			return 1
		}
		return 0.01
	case SELU:
		if x > 0 {
			return seluLambda
		}
		return seluLambda * seluAlpha * math.Exp(x)
	default:
		return 1
	}
}

func (a *Activation) Forward(input *mat.Dense) (*mat.Dense, error) {
	if a.training {
		a.input = input
	}

	rows, cols := input.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, a.apply(input.At(i, j)))
		}
	}
	return out, nil
}

func (a *Activation) Backward(grad *mat.Dense) (*mat.Dense, error) {
	if a.input == nil {
		return nil, fmt.Errorf("activation %s: backward before forward", a.name)
	}

	rows, cols := grad.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, grad.At(i, j)*a.derivative(a.input.At(i, j)))
		}
	}
	return out, nil
}

func (a *Activation) Parameters() []*Param { return nil }
func (a *Activation) Train()               { a.training = true }
func (a *Activation) Eval()                { a.training = false }
func (a *Activation) IsTraining() bool     { return a.training }
