package voxel

import (
	"math"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"gonum.org/v1/gonum/stat"
)

const normEps = 1e-6

// NormalizeColumns z-scores each voxel over time in place:
// (x - mean) / (std + 1e-6), population std.
func NormalizeColumns(ts *models.Sequence) {
	t, v := ts.Len(), ts.Dim()
	if t == 0 {
		return
	}
	col := make([]float64, t)
	for j := 0; j < v; j++ {
		for i := 0; i < t; i++ {
			col[i] = ts.Data[i*v+j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		std := math.Sqrt(variance)
		for i := 0; i < t; i++ {
			ts.Data[i*v+j] = (col[i] - mean) / (std + normEps)
		}
	}
}
