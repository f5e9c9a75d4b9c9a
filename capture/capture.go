// Package capture collects the penultimate-layer feature matrix and the
// final classifier weights from a trained network without changing its
// subsequent behavior. The observation point is a scoped resource: Acquire
// installs it, Release removes it, and Release is safe to call on every exit
// path, including after errors.
package capture

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/models"
)

// UnsupportedArchitectureError reports a model whose capture point could not
// be installed. It must be resolved before any analysis can run.
type UnsupportedArchitectureError struct {
	Arch   string
	Layer  string
	Reason string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("unsupported architecture %s: no capture point at layer %q: %s", e.Arch, e.Layer, e.Reason)
}

// Capture is an installed observation point accumulating per-batch feature
// rows in forward-pass submission order.
type Capture struct {
	net      *models.Network
	layer    string
	handle   int
	batches  []*mat.Dense
	released bool
}

// Acquire installs an observation point on the layer named by spec. The
// caller must Release the returned capture; deferring Release immediately
// after a successful Acquire guarantees the observation point cannot leak
// into later, unrelated uses of the model.
func Acquire(net *models.Network, spec models.CaptureSpec) (*Capture, error) {
	if net == nil {
		return nil, fmt.Errorf("acquire capture: nil network")
	}

	c := &Capture{net: net, layer: spec.Layer}
	handle, err := net.AddHook(spec.Layer, func(out *mat.Dense) {
		c.batches = append(c.batches, mat.DenseCopyOf(out))
	})
	if err != nil {
		return nil, &UnsupportedArchitectureError{
			Arch:   net.Arch(),
			Layer:  spec.Layer,
			Reason: err.Error(),
		}
	}

	c.handle = handle
	return c, nil
}

// Release removes the observation point. It is idempotent.
func (c *Capture) Release() {
	if c.released {
		return
	}
	c.net.RemoveHook(c.layer, c.handle)
	c.released = true
}

// Features concatenates the captured per-batch activations, in submission
// order, into the feature matrix Phi (numExamples x featureDim).
func (c *Capture) Features() (*mat.Dense, error) {
	if len(c.batches) == 0 {
		return nil, fmt.Errorf("capture at layer %s observed no forward passes", c.layer)
	}

	_, featureDim := c.batches[0].Dims()
	total := 0
	for i, b := range c.batches {
		r, d := b.Dims()
		if d != featureDim {
			return nil, fmt.Errorf("capture batch %d has feature width %d, expected %d", i, d, featureDim)
		}
		total += r
	}

	phi := mat.NewDense(total, featureDim, nil)
	row := 0
	for _, b := range c.batches {
		r, _ := b.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < featureDim; j++ {
				phi.Set(row, j, b.At(i, j))
			}
			row++
		}
	}
	return phi, nil
}

// Beta reads the final classifier weight matrix from the model's parameters:
// the named parameter when the capture spec gives one, otherwise the last
// learnable weight matrix. The returned matrix is a copy.
func Beta(net *models.Network, spec models.CaptureSpec) (*mat.Dense, error) {
	var param *models.Param
	var err error
	if spec.BetaParam != "" {
		param, err = net.NamedParam(spec.BetaParam)
	} else {
		param, err = net.LastWeight()
	}
	if err != nil {
		return nil, fmt.Errorf("read classifier weights: %v", err)
	}
	return mat.DenseCopyOf(param.Value), nil
}
