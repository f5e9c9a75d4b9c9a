package models

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Network is an ordered sequence of named modules with support for
// observation points on layer outputs.
type Network struct {
	arch   string
	names  []string
	byName map[string]int
	layers []Module

	// hooks maps layer name to handle -> callback. Callbacks observe the
	// layer output during Forward; they must not mutate it.
	hooks      map[string]map[int]func(output *mat.Dense)
	nextHandle int
}

// NewNetwork creates an empty network for the named architecture.
func NewNetwork(arch string) *Network {
	return &Network{
		arch:   arch,
		byName: make(map[string]int),
		hooks:  make(map[string]map[int]func(*mat.Dense)),
	}
}

// Arch returns the architecture identifier the network was built from.
func (n *Network) Arch() string { return n.arch }

// Add appends a named module. Names must be unique within the network.
func (n *Network) Add(name string, m Module) error {
	if name == "" {
		return fmt.Errorf("layer name must not be empty")
	}
	if _, exists := n.byName[name]; exists {
		return fmt.Errorf("duplicate layer name: %s", name)
	}

	n.byName[name] = len(n.layers)
	n.names = append(n.names, name)
	n.layers = append(n.layers, m)
	return nil
}

// LayerNames returns the layer names in forward order.
func (n *Network) LayerNames() []string {
	return append([]string(nil), n.names...)
}

// HasLayer reports whether the network contains a layer with the given name.
func (n *Network) HasLayer(name string) bool {
	_, ok := n.byName[name]
	return ok
}

// Forward runs the input through every layer in order, invoking any
// registered observation hooks with each hooked layer's output.
func (n *Network) Forward(input *mat.Dense) (*mat.Dense, error) {
	if len(n.layers) == 0 {
		return nil, fmt.Errorf("network %s has no layers", n.arch)
	}

	x := input
	for i, layer := range n.layers {
		out, err := layer.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("forward through layer %s: %v", n.names[i], err)
		}
		if fns := n.hooks[n.names[i]]; len(fns) > 0 {
			for _, fn := range fns {
				fn(out)
			}
		}
		x = out
	}
	return x, nil
}

// Backward propagates the output gradient through every layer in reverse,
// accumulating parameter gradients.
func (n *Network) Backward(grad *mat.Dense) (*mat.Dense, error) {
	g := grad
	for i := len(n.layers) - 1; i >= 0; i-- {
		out, err := n.layers[i].Backward(g)
		if err != nil {
			return nil, fmt.Errorf("backward through layer %s: %v", n.names[i], err)
		}
		g = out
	}
	return g, nil
}

// Parameters returns every trainable parameter in forward layer order.
func (n *Network) Parameters() []*Param {
	var params []*Param
	for _, layer := range n.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// ZeroGrad clears all accumulated parameter gradients.
func (n *Network) ZeroGrad() {
	for _, p := range n.Parameters() {
		p.ZeroGrad()
	}
}

// Train puts every layer into training mode.
func (n *Network) Train() {
	for _, layer := range n.layers {
		layer.Train()
	}
}

// Eval puts every layer into evaluation mode.
func (n *Network) Eval() {
	for _, layer := range n.layers {
		layer.Eval()
	}
}

// AddHook registers an observation callback on the named layer's output and
// returns a handle for removal. The callback runs on every forward pass
// until the handle is removed.
func (n *Network) AddHook(layer string, fn func(output *mat.Dense)) (int, error) {
	if !n.HasLayer(layer) {
		return 0, fmt.Errorf("network %s has no layer named %s", n.arch, layer)
	}
	if fn == nil {
		return 0, fmt.Errorf("hook callback must not be nil")
	}

	if n.hooks[layer] == nil {
		n.hooks[layer] = make(map[int]func(*mat.Dense))
	}
	n.nextHandle++
	n.hooks[layer][n.nextHandle] = fn
	return n.nextHandle, nil
}

// RemoveHook removes a previously registered observation callback. Removing
// an unknown handle is a no-op so removal is safe on every exit path.
func (n *Network) RemoveHook(layer string, handle int) {
	if fns, ok := n.hooks[layer]; ok {
		delete(fns, handle)
		if len(fns) == 0 {
			delete(n.hooks, layer)
		}
	}
}

// HookCount returns the number of active observation callbacks, across all
// layers.
func (n *Network) HookCount() int {
	total := 0
	for _, fns := range n.hooks {
		total += len(fns)
	}
	return total
}

// NamedParam returns the parameter with the given fully qualified name, e.g.
// "fc2.weight".
func (n *Network) NamedParam(name string) (*Param, error) {
	for _, p := range n.Parameters() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("network %s has no parameter named %s", n.arch, name)
}

// LastWeight returns the last learnable weight matrix in layer order, which
// is the final classifier layer's weights for every registered architecture.
func (n *Network) LastWeight() (*Param, error) {
	params := n.Parameters()
	for i := len(params) - 1; i >= 0; i-- {
		if strings.HasSuffix(params[i].Name, ".weight") {
			return params[i], nil
		}
	}
	return nil, fmt.Errorf("network %s has no weight parameters", n.arch)
}
