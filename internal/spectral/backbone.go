package spectral

import (
	"context"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Backbone is a deterministic, dependency-free frame encoder: log band
// energies of a Hamming-windowed STFT. It stands in for a pretrained speech
// model when none is reachable and keeps the pipeline runnable offline.
type Backbone struct {
	rate       int
	windowSize int
	hopSize    int
	nfft       int
	dim        int
	win        []float64
}

// NewBackbone returns an encoder producing dim features per frame at
// sampleRate/HopSize frames per second.
func NewBackbone(sampleRate, dim int) *Backbone {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if dim <= 0 {
		dim = 768
	}
	return &Backbone{
		rate:       sampleRate,
		windowSize: WindowSize,
		hopSize:    HopSize,
		nfft:       nextPow2(max(WindowSize, 2*dim)),
		dim:        dim,
		win:        Hamming(WindowSize),
	}
}

func (b *Backbone) Name() string { return "spectral-logband" }
func (b *Backbone) SampleRate() int { return b.rate }
func (b *Backbone) FeatureDim() int { return b.dim }
func (b *Backbone) FrameHz() float64 { return float64(b.rate) / float64(b.hopSize) }

// Embed returns one row per full analysis window. Input shorter than one
// window yields zero rows.
func (b *Backbone) Embed(ctx context.Context, samples []float64) (*models.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) < b.windowSize {
		return models.NewSequence(0, b.dim), nil
	}
	frames, err := STFT(samples, b.windowSize, b.hopSize, b.nfft, b.win)
	if err != nil {
		return nil, err
	}
	out := models.NewSequence(len(frames), b.dim)
	for i, mag := range frames {
		copy(out.Row(i), Bands(mag, b.dim))
	}
	return out, nil
}
