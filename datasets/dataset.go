// Package datasets provides the training and validation data loaders for
// the experiment driver. Providers are looked up by identifier in a registry
// so an unknown dataset fails at configuration time, before any training.
package datasets

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// UnknownDatasetError reports a dataset identifier with no registered
// provider.
type UnknownDatasetError struct {
	ID string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset: %s", e.ID)
}

// Loader yields batches of flattened examples. A full pass ends when
// NextBatch returns a nil batch; Reset starts the next pass (reshuffling if
// the loader shuffles).
type Loader interface {
	NextBatch() (inputs *mat.Dense, labels []int, err error)
	Reset()
	NumExamples() int
	NumFeatures() int
	NumClasses() int
}

// Config holds provider configuration.
type Config struct {
	// Root is the directory holding the dataset files on disk. Unused by
	// synthetic providers.
	Root string

	// BatchSize is the batch size for both loaders.
	BatchSize int

	// Augment enables training-split augmentation (random crop and
	// horizontal flip) for image datasets that support it.
	Augment bool

	// Seed drives shuffling and augmentation. The validation loader never
	// shuffles: its iteration order defines the example ordering that the
	// output history and the feature matrix share.
	Seed int64
}

// Provider loads a dataset split into train and validation loaders.
type Provider struct {
	ID   string
	Load func(cfg Config) (train, val Loader, err error)
}

var registry = make(map[string]Provider)

// Register adds a dataset provider.
func Register(p Provider) error {
	if p.ID == "" {
		return fmt.Errorf("dataset ID must not be empty")
	}
	if p.Load == nil {
		return fmt.Errorf("dataset %s has no loader", p.ID)
	}
	if _, exists := registry[p.ID]; exists {
		return fmt.Errorf("dataset %s already registered", p.ID)
	}
	registry[p.ID] = p
	return nil
}

// Get looks up a registered dataset provider.
func Get(id string) (Provider, error) {
	p, ok := registry[id]
	if !ok {
		return Provider{}, &UnknownDatasetError{ID: id}
	}
	return p, nil
}

// List returns the registered dataset identifiers in sorted order.
func List() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func mustRegister(p Provider) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// AugmentFunc rewrites one flattened example in place before it enters a
// batch.
type AugmentFunc func(example []float64)

// denseLoader serves batches from an in-memory example matrix.
type denseLoader struct {
	images     *mat.Dense
	labels     []int
	numClasses int
	batchSize  int
	shuffle    bool
	rng        *rand.Rand
	indices    []int
	pos        int
	augment    AugmentFunc
}

// newDenseLoader wraps a fully materialized example matrix. When shuffle is
// false the iteration order is the storage order on every pass.
func newDenseLoader(images *mat.Dense, labels []int, numClasses, batchSize int, shuffle bool, seed int64, augment AugmentFunc) (*denseLoader, error) {
	n, _ := images.Dims()
	if len(labels) != n {
		return nil, fmt.Errorf("label count %d does not match example count %d", len(labels), n)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	dl := &denseLoader{
		images:     images,
		labels:     labels,
		numClasses: numClasses,
		batchSize:  batchSize,
		shuffle:    shuffle,
		rng:        rand.New(rand.NewSource(seed)),
		indices:    indices,
		augment:    augment,
	}
	if shuffle {
		dl.rng.Shuffle(n, func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
	return dl, nil
}

func (dl *denseLoader) NextBatch() (*mat.Dense, []int, error) {
	remaining := len(dl.indices) - dl.pos
	if remaining <= 0 {
		return nil, nil, nil
	}

	size := dl.batchSize
	if remaining < size {
		size = remaining
	}

	_, d := dl.images.Dims()
	batch := mat.NewDense(size, d, nil)
	labels := make([]int, size)

	row := make([]float64, d)
	for i := 0; i < size; i++ {
		src := dl.indices[dl.pos+i]
		copy(row, dl.images.RawRowView(src))
		if dl.augment != nil {
			dl.augment(row)
		}
		batch.SetRow(i, row)
		labels[i] = dl.labels[src]
	}

	dl.pos += size
	return batch, labels, nil
}

func (dl *denseLoader) Reset() {
	dl.pos = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

func (dl *denseLoader) NumExamples() int { return len(dl.labels) }

func (dl *denseLoader) NumFeatures() int {
	_, d := dl.images.Dims()
	return d
}

func (dl *denseLoader) NumClasses() int { return dl.numClasses }
