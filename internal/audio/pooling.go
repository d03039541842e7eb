package audio

import (
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"gonum.org/v1/gonum/stat"
)

const zscoreEps = 1e-6

// Pool mean-pools frames into windows of winSec every hopSec. Window i covers
// frames [i*hop, i*hop+win); only full windows are emitted, so L frames give
// 1+floor((L-win)/hop) windows when L >= win and none otherwise.
func Pool(frames *models.Sequence, frameHz, winSec, hopSec float64) *models.AudioWindowSequence {
	out := &models.AudioWindowSequence{WinSec: winSec, HopSec: hopSec}
	win := int(winSec * frameHz)
	hop := int(hopSec * frameHz)
	n, dim := frames.Len(), frames.Dim()
	if n == 0 || win <= 0 || hop <= 0 || n < win {
		out.Sequence = models.NewSequence(0, dim)
		return out
	}

	count := 1 + (n-win)/hop
	pooled := models.NewSequence(count, dim)
	for i := 0; i < count; i++ {
		dst := pooled.Row(i)
		for f := i * hop; f < i*hop+win; f++ {
			for j, x := range frames.Row(f) {
				dst[j] += x
			}
		}
		for j := range dst {
			dst[j] /= float64(win)
		}
	}
	out.Sequence = pooled
	return out
}

// ZScore standardizes each column in place with the sample standard
// deviation: (x - mean) / (std + 1e-6). Fewer than two rows leaves
// centered values.
func ZScore(s *models.Sequence) {
	n, dim := s.Len(), s.Dim()
	if n == 0 {
		return
	}
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		for i := 0; i < n; i++ {
			col[i] = s.Data[i*dim+j]
		}
		var mean, std float64
		if n > 1 {
			mean, std = stat.MeanStdDev(col, nil)
		} else {
			mean = col[0]
		}
		for i := 0; i < n; i++ {
			s.Data[i*dim+j] = (col[i] - mean) / (std + zscoreEps)
		}
	}
}
