package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-basis/tensor"
)

// Config controls the decomposition. The zero value is usable: defaults are
// filled in by Analyze.
type Config struct {
	// TopK is the number of leading basis directions to extract.
	// Capped at the available rank of the feature matrix.
	TopK int

	// Denominator is the normalizing denominator used both for the
	// direction normalizer trace(uᵀu)/Denominator and for the per-epoch
	// coefficient trace(F·u)/Denominator. Zero means "number of examples",
	// which matches the convention the coefficients were defined with.
	Denominator int

	// DegenerateTol is the smallest normalizer magnitude considered
	// divisible. Directions below it are skipped and reported, not divided.
	DegenerateTol float64
}

// DefaultConfig returns the standard analyzer configuration.
func DefaultConfig() Config {
	return Config{
		TopK:          20,
		Denominator:   0, // resolved to numExamples at analysis time
		DegenerateTol: 1e-12,
	}
}

// Result holds the outcome of a basis decomposition analysis.
type Result struct {
	// Coefficients maps basis index (1-based, descending singular value
	// order) to one scalar per recorded epoch: how much of that epoch's
	// output function lies along the direction.
	Coefficients map[int][]float64

	// SingularValues are the singular values of the feature matrix, in
	// descending order, one per extracted direction.
	SingularValues []float64

	// Skipped lists directions whose normalizer was below tolerance.
	// Their indices have no entry in Coefficients.
	Skipped []*DegenerateDirectionError
}

// Analyze decomposes the captured feature matrix phi (numExamples x
// featureDim) by SVD, projects the final-layer weights beta (numClasses x
// featureDim) onto the right-singular basis, and measures, for every
// recorded epoch in hist, the alignment of that epoch's output snapshot with
// each of the leading basis directions.
//
// The computation is a pure function of its inputs: phi, beta, and hist are
// not mutated, and identical inputs produce identical results.
func Analyze(phi, beta *mat.Dense, hist *tensor.OutputHistory, cfg Config) (*Result, error) {
	if phi == nil || beta == nil || hist == nil {
		return nil, fmt.Errorf("analyze: nil input")
	}

	numExamples, featureDim := phi.Dims()
	numClasses, betaDim := beta.Dims()

	// All shape checks happen before any SVD work.
	if betaDim != featureDim {
		return nil, &DimensionMismatchError{What: "beta feature dimension", Expected: featureDim, Got: betaDim}
	}
	if hist.NumExamples() != numExamples {
		return nil, &DimensionMismatchError{What: "output history example count", Expected: numExamples, Got: hist.NumExamples()}
	}
	if hist.NumClasses() != numClasses {
		return nil, &DimensionMismatchError{What: "output history class count", Expected: numClasses, Got: hist.NumClasses()}
	}
	if hist.Epochs() == 0 {
		return nil, fmt.Errorf("analyze: output history is empty")
	}

	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.DegenerateTol <= 0 {
		cfg.DegenerateTol = DefaultConfig().DegenerateTol
	}
	denom := float64(cfg.Denominator)
	if cfg.Denominator == 0 {
		denom = float64(numExamples)
	}

	var svd mat.SVD
	if ok := svd.Factorize(phi, mat.SVDThin); !ok {
		return nil, fmt.Errorf("analyze: SVD of %dx%d feature matrix failed to converge", numExamples, featureDim)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	k := cfg.TopK
	if k > len(values) {
		k = len(values)
	}

	// betaStar projects the weight rows onto the right-singular basis.
	var betaStar mat.Dense
	betaStar.Mul(beta, &v)

	result := &Result{
		Coefficients:   make(map[int][]float64, k),
		SingularValues: append([]float64(nil), values[:k]...),
	}

	epochs := hist.Epochs()
	for i := 0; i < k; i++ {
		// The i-th direction is the rank-one outer product
		// betaStar[:,i] ⊗ U[:,i]. Its squared Frobenius norm factors into
		// the product of the two column norms, so the dense numClasses x
		// numExamples matrix never needs materializing.
		var betaNorm, uNorm float64
		for c := 0; c < numClasses; c++ {
			betaNorm += betaStar.At(c, i) * betaStar.At(c, i)
		}
		for r := 0; r < numExamples; r++ {
			uNorm += u.At(r, i) * u.At(r, i)
		}

		normalizer := betaNorm * uNorm / denom
		if math.Abs(normalizer) <= cfg.DegenerateTol {
			result.Skipped = append(result.Skipped, &DegenerateDirectionError{
				Index:      i + 1,
				Normalizer: normalizer,
			})
			continue
		}

		coeffs := make([]float64, epochs)
		for e := 0; e < epochs; e++ {
			snapshot, err := hist.At(e)
			if err != nil {
				return nil, err
			}

			// trace(F_e · u_i) with u_i rank one reduces to
			// Σ_j U[j,i] · (F_e[j,:] · betaStar[:,i]).
			var raw float64
			for j := 0; j < numExamples; j++ {
				var dot float64
				for c := 0; c < numClasses; c++ {
					dot += snapshot.At(j, c) * betaStar.At(c, i)
				}
				raw += u.At(j, i) * dot
			}
			coeffs[e] = raw / normalizer / denom
		}
		result.Coefficients[i+1] = coeffs
	}

	return result, nil
}
