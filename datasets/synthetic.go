package datasets

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	syntheticTrainSize = 2048
	syntheticValSize   = 512
	syntheticFeatures  = 16
	syntheticClasses   = 4
	syntheticSpread    = 0.5
)

// makeBlobs samples a Gaussian-blob classification problem: one unit-norm
// random center per class, examples scattered around their class center.
func makeBlobs(n, features, classes int, rng *rand.Rand) (*mat.Dense, []int) {
	noise := distuv.Normal{Mu: 0, Sigma: syntheticSpread, Src: rng}

	centers := mat.NewDense(classes, features, nil)
	for c := 0; c < classes; c++ {
		row := make([]float64, features)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		vec := mat.NewVecDense(features, row)
		vec.ScaleVec(1/mat.Norm(vec, 2), vec)
		centers.SetRow(c, row)
	}

	images := mat.NewDense(n, features, nil)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		c := i % classes
		labels[i] = c
		for j := 0; j < features; j++ {
			images.Set(i, j, centers.At(c, j)+noise.Rand())
		}
	}
	return images, labels
}

// loadSynthetic builds a deterministic in-memory blob dataset. It needs no
// files on disk, which makes it the dataset of choice for tests and smoke
// runs.
func loadSynthetic(cfg Config) (Loader, Loader, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	trainImages, trainLabels := makeBlobs(syntheticTrainSize, syntheticFeatures, syntheticClasses, rng)
	valImages, valLabels := makeBlobs(syntheticValSize, syntheticFeatures, syntheticClasses, rng)

	train, err := newDenseLoader(trainImages, trainLabels, syntheticClasses,
		cfg.BatchSize, true, cfg.Seed, nil)
	if err != nil {
		return nil, nil, err
	}

	val, err := newDenseLoader(valImages, valLabels, syntheticClasses,
		cfg.BatchSize, false, cfg.Seed, nil)
	if err != nil {
		return nil, nil, err
	}
	return train, val, nil
}

func init() {
	mustRegister(Provider{ID: "synthetic", Load: loadSynthetic})
}
