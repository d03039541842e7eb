package voxel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// IncrementalPCA fits principal components one batch at a time so the full
// T×V matrix never has to be decomposed at once. Each PartialFit stacks the
// previous singular-value-scaled components, the centered batch and a mean
// correction row, then takes a thin SVD of that small stack.
type IncrementalPCA struct {
	NComponents int

	components *mat.Dense // k×V, rows are unit components
	singular   []float64  // k
	mean       []float64  // V
	variance   []float64  // V, population variance of everything seen
	nSeen      int
	ratio      []float64 // explained variance ratio per component
}

var errNotFitted = errors.New("pca: not fitted")

// NewIncrementalPCA returns an unfitted model keeping k components.
func NewIncrementalPCA(k int) *IncrementalPCA {
	return &IncrementalPCA{NComponents: k}
}

// PartialFit folds a b×V batch into the model. b must be at least
// NComponents.
func (p *IncrementalPCA) PartialFit(batch *mat.Dense) error {
	b, v := batch.Dims()
	k := p.NComponents
	if b < k {
		return fmt.Errorf("pca: batch of %d rows is smaller than %d components", b, k)
	}
	if k > v {
		return fmt.Errorf("pca: %d components exceed %d features", k, v)
	}
	if p.nSeen > 0 && len(p.mean) != v {
		return fmt.Errorf("pca: batch has %d features, model has %d", v, len(p.mean))
	}

	batchMean := make([]float64, v)
	batchVar := make([]float64, v)
	for j := 0; j < v; j++ {
		var s float64
		for i := 0; i < b; i++ {
			s += batch.At(i, j)
		}
		m := s / float64(b)
		var ss float64
		for i := 0; i < b; i++ {
			d := batch.At(i, j) - m
			ss += d * d
		}
		batchMean[j] = m
		batchVar[j] = ss / float64(b)
	}

	// Chan et al. pairwise update of mean and variance.
	nOld := float64(p.nSeen)
	nNew := float64(b)
	nTotal := nOld + nNew
	mean := make([]float64, v)
	variance := make([]float64, v)
	for j := 0; j < v; j++ {
		if p.nSeen == 0 {
			mean[j] = batchMean[j]
			variance[j] = batchVar[j]
			continue
		}
		delta := batchMean[j] - p.mean[j]
		mean[j] = p.mean[j] + delta*nNew/nTotal
		m2 := p.variance[j]*nOld + batchVar[j]*nNew + delta*delta*nOld*nNew/nTotal
		variance[j] = m2 / nTotal
	}

	var stack *mat.Dense
	if p.nSeen == 0 {
		stack = mat.NewDense(b, v, nil)
		for i := 0; i < b; i++ {
			for j := 0; j < v; j++ {
				stack.Set(i, j, batch.At(i, j)-mean[j])
			}
		}
	} else {
		kPrev := len(p.singular)
		stack = mat.NewDense(kPrev+b+1, v, nil)
		for i := 0; i < kPrev; i++ {
			for j := 0; j < v; j++ {
				stack.Set(i, j, p.singular[i]*p.components.At(i, j))
			}
		}
		for i := 0; i < b; i++ {
			for j := 0; j < v; j++ {
				stack.Set(kPrev+i, j, batch.At(i, j)-batchMean[j])
			}
		}
		corr := math.Sqrt(nOld / nTotal * nNew)
		for j := 0; j < v; j++ {
			stack.Set(kPrev+b, j, corr*(p.mean[j]-batchMean[j]))
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(stack, mat.SVDThin); !ok {
		return errors.New("pca: SVD failed to converge")
	}
	values := svd.Values(nil)
	var vMat mat.Dense
	svd.VTo(&vMat)

	components := mat.NewDense(k, v, nil)
	for c := 0; c < k; c++ {
		// Sign convention: the largest-magnitude loading of each component
		// is positive, so refits on the same data agree.
		maxAbs, sign := -1.0, 1.0
		for j := 0; j < v; j++ {
			x := vMat.At(j, c)
			if math.Abs(x) > maxAbs {
				maxAbs = math.Abs(x)
				if x < 0 {
					sign = -1
				} else {
					sign = 1
				}
			}
		}
		for j := 0; j < v; j++ {
			components.Set(c, j, sign*vMat.At(j, c))
		}
	}

	var totalVar float64
	for _, x := range variance {
		totalVar += x * nTotal
	}
	ratio := make([]float64, k)
	if totalVar > 0 {
		for c := 0; c < k; c++ {
			ratio[c] = values[c] * values[c] / totalVar
		}
	}

	p.components = components
	p.singular = append([]float64(nil), values[:k]...)
	p.mean = mean
	p.variance = variance
	p.nSeen += b
	p.ratio = ratio
	return nil
}

// Transform projects a b×V batch onto the fitted components.
func (p *IncrementalPCA) Transform(batch *mat.Dense) (*mat.Dense, error) {
	if p.components == nil {
		return nil, errNotFitted
	}
	b, v := batch.Dims()
	if v != len(p.mean) {
		return nil, fmt.Errorf("pca: batch has %d features, model has %d", v, len(p.mean))
	}
	centered := mat.NewDense(b, v, nil)
	centered.Apply(func(_, j int, x float64) float64 { return x - p.mean[j] }, batch)

	var out mat.Dense
	out.Mul(centered, p.components.T())
	return &out, nil
}

// ExplainedVarianceRatio returns the per-component ratios of the last fit.
func (p *IncrementalPCA) ExplainedVarianceRatio() []float64 {
	return append([]float64(nil), p.ratio...)
}

// Components returns a copy of the k×V component matrix.
func (p *IncrementalPCA) Components() *mat.Dense {
	if p.components == nil {
		return nil
	}
	return mat.DenseCopyOf(p.components)
}

// SamplesSeen is the number of rows folded in so far.
func (p *IncrementalPCA) SamplesSeen() int { return p.nSeen }
