package audio

import (
	"context"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Backbone turns a mono waveform into per-frame features at a fixed rate.
// Implementations are treated as fixed external functions.
type Backbone interface {
	Name() string
	SampleRate() int
	FrameHz() float64
	FeatureDim() int
	Embed(ctx context.Context, samples []float64) (*models.Sequence, error)
}
