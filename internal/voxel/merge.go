package voxel

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

var ErrNoRuns = errors.New("no runs to merge")

// MergeRuns averages repeated runs of one segment elementwise after trimming
// every run to the shortest. The result is the same for any run order.
func MergeRuns(runs ...*models.Sequence) (*models.Sequence, error) {
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	dim := runs[0].Dim()
	length := runs[0].Len()
	for i, r := range runs[1:] {
		if r.Dim() != dim {
			return nil, &models.ShapeError{Op: "merge runs", Want: dim, Got: r.Dim(),
				Detail: fmt.Sprintf("run %d", i+1)}
		}
		length = min(length, r.Len())
	}

	out := models.NewSequence(length, dim)
	n := float64(len(runs))
	for t := 0; t < length; t++ {
		dst := out.Row(t)
		for _, r := range runs {
			for j, x := range r.Row(t) {
				dst[j] += x
			}
		}
		for j := range dst {
			dst[j] /= n
		}
	}
	return out, nil
}
