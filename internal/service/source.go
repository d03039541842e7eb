package service

import (
	"context"
	"fmt"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/evaluate"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// storeSource reads motion targets and per-subject embeddings from the
// artifact store. Brain embeddings are fit to the fusion brain width
// (truncated or zero-padded), exactly as the fusion stage prepares them, so
// a segment whose component count was capped still reaches its decoder.
type storeSource struct {
	s *PipelineService
}

func (src storeSource) Motion(ctx context.Context, segment string) (*models.MotionTargetSequence, error) {
	seq, err := artifact.GetSequence(ctx, src.s.store, src.s.layout.Motion(segment), StageEvaluate)
	if err != nil {
		return nil, err
	}
	if seq.Len() > 0 && seq.Dim() != 2 {
		return nil, &models.ShapeError{Op: "load motion", Want: 2, Got: seq.Dim(), Detail: segment}
	}
	return &models.MotionTargetSequence{Sequence: seq, FPS: src.s.cfg.Evaluation.FPS}, nil
}

func (src storeSource) Embedding(ctx context.Context, mode evaluate.Mode, subject, segment string) (*models.Sequence, error) {
	switch mode {
	case evaluate.ModeFMRI:
		in := src.s.fusionInputs()
		seq, err := artifact.GetSequence(ctx, src.s.store, in.SegmentEmbedding(subject, segment), StageEvaluate)
		if err != nil {
			return nil, err
		}
		return seq.FitColumns(src.s.cfg.Fusion.DFMRI), nil
	case evaluate.ModeFusion:
		return artifact.GetSequence(ctx, src.s.store, src.s.layout.Fused(subject, segment), StageEvaluate)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

var _ evaluate.Source = storeSource{}
