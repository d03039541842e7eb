package voxel

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/NeuroMotion/internal/execctx"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"gonum.org/v1/gonum/mat"
)

// Embedder reduces a T×V voxel time series to T×D with incremental PCA.
type Embedder struct {
	NComponents int
	BatchSize   int

	exec execctx.Context
	log  *logger.Logger
}

// Result is an embedding plus the quality signal of the fit.
type Result struct {
	Embedding         *models.Sequence
	ExplainedVariance float64 // sum of per-component ratios
	Components        int
	Cap               *models.DimensionCapWarning
}

func NewEmbedder(nComponents, batchSize int, ec execctx.Context, log *logger.Logger) *Embedder {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Embedder{
		NComponents: nComponents,
		BatchSize:   ec.BatchOr(batchSize),
		exec:        ec,
		log:         log,
	}
}

var ErrEmptySeries = errors.New("voxel time series is empty")

// Embed fits and transforms ts. The component count is capped at the number
// of timepoints (and voxels); the cap is logged and reported in Result.Cap.
func (e *Embedder) Embed(ctx context.Context, ts *models.Sequence) (*Result, error) {
	t, v := ts.Len(), ts.Dim()
	if t == 0 || v == 0 {
		return nil, ErrEmptySeries
	}
	if e.NComponents < 1 {
		return nil, fmt.Errorf("n_components must be positive, got %d", e.NComponents)
	}

	n := min(e.NComponents, t, v)
	res := &Result{Components: n}
	if n < e.NComponents {
		w := models.DimensionCapWarning{Requested: e.NComponents, Capped: n, Timepoints: t}
		res.Cap = &w
		e.log.Warnf("%s", w)
	}

	batch := max(e.BatchSize, n)
	bounds := batchBounds(t, batch, n)
	x := ts.Dense()

	pca := NewIncrementalPCA(n)
	for i, r := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := pca.PartialFit(rowSlice(x, r[0], r[1])); err != nil {
			return nil, fmt.Errorf("fitting batch %d/%d: %w", i+1, len(bounds), err)
		}
	}

	out := models.NewSequence(t, n)
	for _, r := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z, err := pca.Transform(rowSlice(x, r[0], r[1]))
		if err != nil {
			return nil, err
		}
		for i := r[0]; i < r[1]; i++ {
			row := out.Row(i)
			mat.Row(row, i-r[0], z)
		}
	}
	e.exec.Round(out.Data)

	for _, r := range pca.ExplainedVarianceRatio() {
		res.ExplainedVariance += r
	}
	res.Embedding = out
	e.log.Debugf("embedded %d×%d -> %d×%d (explained variance %.3f)", t, v, t, n, res.ExplainedVariance)
	return res, nil
}

// batchBounds splits [0,t) into batches of size batch. A trailing batch
// shorter than minRows is folded into the one before it.
func batchBounds(t, batch, minRows int) [][2]int {
	var out [][2]int
	for s := 0; s < t; s += batch {
		out = append(out, [2]int{s, min(s+batch, t)})
	}
	if n := len(out); n > 1 && out[n-1][1]-out[n-1][0] < minRows {
		out[n-2][1] = out[n-1][1]
		out = out[:n-1]
	}
	return out
}

func rowSlice(x *mat.Dense, from, to int) *mat.Dense {
	_, c := x.Dims()
	return x.Slice(from, to, 0, c).(*mat.Dense)
}
