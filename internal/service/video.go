package service

import (
	"context"
	"errors"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/evaluate"
	"github.com/himanishpuri/NeuroMotion/internal/regress"
	"github.com/himanishpuri/NeuroMotion/internal/video"
)

var ErrNoVideoService = errors.New("video.url is not configured")

// VideoResult lists the published frames of one generated clip.
type VideoResult struct {
	Seed   int64    `json:"seed"`
	Frames []string `json:"frames"`
}

// GenerateVideo decodes motion from a subject's fused embedding and asks
// the generator for a clip seeded by that motion.
func (s *PipelineService) GenerateVideo(ctx context.Context, subject, segment string, seedImage []byte) (*VideoResult, error) {
	if s.video == nil {
		return nil, ErrNoVideoService
	}
	log := s.log.WithFields(map[string]any{"subject": subject, "segment": segment, "stage": StageVideo})

	// 1. Predict motion from the fused embedding
	dec, err := s.LoadDecoder(ctx, evaluate.ModeFusion)
	if err != nil {
		return nil, err
	}
	fused, err := artifact.GetSequence(ctx, s.store, s.layout.Fused(subject, segment), StageVideo)
	if err != nil {
		return nil, err
	}
	neg, err := s.Negotiator(ctx, map[evaluate.Mode]*regress.Decoder{evaluate.ModeFusion: dec})
	if err != nil {
		return nil, err
	}
	x, err := neg.Fit(fused, dec.InDim())
	if err != nil {
		return nil, err
	}
	motion, err := dec.Predict(ctx, x)
	if err != nil {
		return nil, err
	}

	// 2. Generate
	req := video.NewRequest(seedImage, motion, s.cfg.Video.NumFrames, s.cfg.Video.FPS)
	log.Infof("requesting %d frames with seed %d", req.NumFrames, req.Seed)
	resp, err := s.video.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	// 3. Publish frames
	res := &VideoResult{Seed: req.Seed}
	for i, frame := range resp.Frames {
		path := s.layout.Frame(s.cfg.Video.OutputDir, subject, segment, i)
		if err := s.store.Put(ctx, path, frame); err != nil {
			return nil, err
		}
		res.Frames = append(res.Frames, path)
	}
	if _, err := s.ledger.Complete(ctx, StageVideo, subject+"/"+segment, res.Frames); err != nil {
		return nil, err
	}
	log.Infof("published %d frames", len(res.Frames))
	return res, nil
}
