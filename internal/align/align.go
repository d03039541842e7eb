// Package align maps pooled audio windows onto the scan time grid.
package align

import (
	"math"
	"sort"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// ratioTol is the tolerance for treating TR/hop as an integer.
const ratioTol = 1e-6

// Regime names the path Align took.
type Regime int

const (
	Exact Regime = iota
	Nearest
)

func (r Regime) String() string {
	if r == Exact {
		return "exact"
	}
	return "nearest"
}

// Result is the aligned sequence plus the window indices each target row
// was built from.
type Result struct {
	*models.Sequence
	Regime  Regime
	Sources [][2]int // per target row, the half-open window range used; {0,0} when zero-filled
}

// Align resamples windows to exactly t rows spaced tr seconds apart.
//
// When tr/hop is within 1e-6 of an integer r >= 1, row k is the mean of
// windows [k*r, (k+1)*r) clipped to the available windows, and rows whose
// range starts past the end stay zero. Otherwise row k takes the first
// window whose center is at or after k*tr + tr/2, clamped to the last
// window.
func Align(windows *models.AudioWindowSequence, t int, tr float64) *Result {
	n, dim := windows.Len(), windows.Dim()
	out := &Result{Sequence: models.NewSequence(t, dim), Sources: make([][2]int, t)}
	if t <= 0 {
		out.Sequence = models.NewSequence(0, dim)
		out.Sources = nil
		return out
	}

	r := tr / windows.HopSec
	ri := int(math.Round(r))
	if math.Abs(r-float64(ri)) < ratioTol && ri >= 1 {
		out.Regime = Exact
		for k := 0; k < t; k++ {
			s, e := k*ri, min((k+1)*ri, n)
			if s >= n {
				break
			}
			dst := out.Row(k)
			for i := s; i < e; i++ {
				for j, x := range windows.Row(i) {
					dst[j] += x
				}
			}
			for j := range dst {
				dst[j] /= float64(e - s)
			}
			out.Sources[k] = [2]int{s, e}
		}
		return out
	}

	out.Regime = Nearest
	if n == 0 {
		return out
	}
	for k := 0; k < t; k++ {
		idx := NearestIndex(windows, float64(k)*tr+tr/2)
		copy(out.Row(k), windows.Row(idx))
		out.Sources[k] = [2]int{idx, idx + 1}
	}
	return out
}

// NearestIndex returns the first window whose center is >= at, clamped to
// [0, N-1]. Equal centers resolve to the earlier window.
func NearestIndex(windows *models.AudioWindowSequence, at float64) int {
	n := windows.Len()
	i := sort.Search(n, func(i int) bool { return windows.Center(i) >= at })
	return max(0, min(i, n-1))
}

// Bucket averages consecutive blocks of framesPerTR rows. Trailing frames
// that do not fill a whole block are dropped, so a sequence shorter than one
// block yields zero rows.
func Bucket(frames *models.Sequence, framesPerTR int) *models.Sequence {
	if framesPerTR < 1 {
		framesPerTR = 1
	}
	blocks := frames.Len() / framesPerTR
	out := models.NewSequence(blocks, frames.Dim())
	for b := 0; b < blocks; b++ {
		dst := out.Row(b)
		for i := b * framesPerTR; i < (b+1)*framesPerTR; i++ {
			for j, x := range frames.Row(i) {
				dst[j] += x
			}
		}
		for j := range dst {
			dst[j] /= float64(framesPerTR)
		}
	}
	return out
}
