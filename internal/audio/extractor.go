package audio

import (
	"context"
	"fmt"
	"math"

	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Extractor runs a Backbone over overlapping chunks of a waveform and
// stitches the frame sequences, dropping the frames of each later chunk
// that cover the overlap with its predecessor.
type Extractor struct {
	Backbone   Backbone
	ChunkSec   float64
	OverlapSec float64

	log *logger.Logger
}

func NewExtractor(b Backbone, chunkSec, overlapSec float64, log *logger.Logger) (*Extractor, error) {
	if chunkSec <= 0 || overlapSec < 0 || chunkSec <= overlapSec {
		return nil, fmt.Errorf("invalid chunking: chunk %gs, overlap %gs", chunkSec, overlapSec)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{Backbone: b, ChunkSec: chunkSec, OverlapSec: overlapSec, log: log}, nil
}

// DropFrames is the number of leading frames removed from every chunk
// after the first.
func (e *Extractor) DropFrames() int {
	return int(math.Round(e.OverlapSec * e.Backbone.FrameHz()))
}

// Extract returns the frame sequence of samples, which must already be at
// the backbone's sample rate. An empty waveform yields a 0×dim sequence.
func (e *Extractor) Extract(ctx context.Context, samples []float64) (*models.Sequence, error) {
	dim := e.Backbone.FeatureDim()
	n := len(samples)
	if n == 0 {
		return models.NewSequence(0, dim), nil
	}

	sr := float64(e.Backbone.SampleRate())
	chunk := int(e.ChunkSec * sr)
	step := int((e.ChunkSec - e.OverlapSec) * sr)
	if chunk <= 0 || step <= 0 {
		return nil, fmt.Errorf("chunk of %d samples with step %d at %g Hz", chunk, step, sr)
	}
	drop := e.DropFrames()

	var parts []*models.Sequence
	rows := 0
	for s := 0; s < n; s += step {
		end := min(n, s+chunk)
		out, err := e.Backbone.Embed(ctx, samples[s:end])
		if err != nil {
			return nil, fmt.Errorf("chunk at %.2fs: %w", float64(s)/sr, err)
		}
		if out.Dim() != dim && out.Len() > 0 {
			return nil, &models.ShapeError{Op: "extract frames", Want: dim, Got: out.Dim()}
		}
		if out.Len() == 0 {
			e.log.Debugf("chunk at %.2fs produced no frames, stopping", float64(s)/sr)
			break
		}
		if len(parts) > 0 && drop > 0 {
			k := min(drop, out.Len())
			out = &models.Sequence{Rows: out.Rows - k, Cols: dim, Data: out.Data[k*dim:]}
		}
		if out.Len() > 0 {
			parts = append(parts, out)
			rows += out.Len()
		} else {
			e.log.Debugf("chunk at %.2fs lies within the overlap, skipped", float64(s)/sr)
		}
		if end >= n {
			break
		}
	}

	result := models.NewSequence(rows, dim)
	off := 0
	for _, p := range parts {
		copy(result.Data[off:], p.Data)
		off += len(p.Data)
	}
	return result, nil
}
