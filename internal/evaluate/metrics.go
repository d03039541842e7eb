package evaluate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// MSE is the mean squared difference over every element of the first n
// rows, where n is the shorter length. Empty input gives NaN.
func MSE(pred, truth *models.Sequence) float64 {
	n := min(pred.Len(), truth.Len())
	if n == 0 || pred.Dim() != truth.Dim() {
		return math.NaN()
	}
	k := n * pred.Dim()
	var s float64
	for i := 0; i < k; i++ {
		d := pred.Data[i] - truth.Data[i]
		s += d * d
	}
	return s / float64(k)
}

// Pearson correlates one column of pred and truth. It returns NaN instead
// of failing when either side is constant or too short.
func Pearson(pred, truth *models.Sequence, col int) float64 {
	n := min(pred.Len(), truth.Len())
	if n < 2 || col >= pred.Dim() || col >= truth.Dim() {
		return math.NaN()
	}
	x := column(pred, col, n)
	y := column(truth, col, n)
	if constant(x) || constant(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

func column(s *models.Sequence, col, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.At(i, col)
	}
	return out
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
