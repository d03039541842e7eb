package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/NeuroMotion/internal/align"
	"github.com/himanishpuri/NeuroMotion/internal/evaluate"
	"github.com/himanishpuri/NeuroMotion/internal/regress"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

const motionSuffix = "_motion.msgpack"

// TrainSummary reports one training session.
type TrainSummary struct {
	Mode       string `json:"mode"`
	Resumed    bool   `json:"resumed"`
	Pairs      int    `json:"pairs"`
	Skipped    int    `json:"skipped"`
	Samples    int    `json:"samples"`
	Checkpoint string `json:"checkpoint"`
}

func (s *PipelineService) decoderModel(mode evaluate.Mode) (config.DecoderModel, error) {
	switch mode {
	case evaluate.ModeFMRI:
		return s.cfg.Decoder.FMRI, nil
	case evaluate.ModeFusion:
		return s.cfg.Decoder.Fusion, nil
	}
	return config.DecoderModel{}, fmt.Errorf("unknown decoder mode %q", mode)
}

// TrainSegments returns the configured training segments, or every segment
// with motion targets that is not held out for evaluation.
func (s *PipelineService) TrainSegments() ([]string, error) {
	if len(s.cfg.Decoder.TrainSegs) > 0 {
		return s.cfg.Decoder.TrainSegs, nil
	}
	return s.motionSegments(s.cfg.Evaluation.Segments)
}

// motionSegments lists segments with a local motion file, minus exclude.
func (s *PipelineService) motionSegments(exclude []string) ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Evaluation.MotionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: s.cfg.Evaluation.MotionDir, Stage: StageTrain}
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, motionSuffix) {
			continue
		}
		seg := strings.TrimSuffix(name, motionSuffix)
		if !slices.Contains(exclude, seg) {
			out = append(out, seg)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Train fits one decoder on every available subject and training segment,
// continuing from the stored checkpoint when one exists. Pairs already in
// the checkpoint are not counted again.
func (s *PipelineService) Train(ctx context.Context, mode evaluate.Mode) (*TrainSummary, error) {
	log := s.log.WithFields(map[string]any{"stage": StageTrain, "mode": string(mode)})
	m, err := s.decoderModel(mode)
	if err != nil {
		return nil, err
	}
	arch := regress.ArchFromConfig(m, s.cfg.Decoder.OutDim)
	dec, err := regress.NewDecoder(arch, s.cfg.Decoder.Seed, s.exec)
	if err != nil {
		return nil, err
	}
	tr := regress.NewTrainer(dec, s.cfg.Decoder.Ridge, log)
	ckPath := s.layout.Checkpoint(string(mode))
	sum := &TrainSummary{Mode: string(mode), Checkpoint: ckPath}

	// 1. Resume, or seed the fused decoder's encoder from the brain one
	data, err := s.store.Get(ctx, ckPath)
	switch {
	case err == nil:
		ck, err := regress.DecodeCheckpoint(data)
		if err != nil {
			return nil, err
		}
		if err := tr.Resume(ck); err != nil {
			return nil, fmt.Errorf("resume %s: %w", ckPath, err)
		}
		sum.Resumed = true
	case errors.Is(err, fs.ErrNotExist):
		if mode == evaluate.ModeFusion && s.cfg.Decoder.Transfer {
			s.transferEncoder(ctx, dec, log)
		}
	default:
		return nil, err
	}

	// 2. Accumulate subject × segment pairs, negotiating widths as evaluation does
	neg, err := s.Negotiator(ctx, map[evaluate.Mode]*regress.Decoder{mode: dec})
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects()
	if err != nil {
		return nil, err
	}
	segments, err := s.TrainSegments()
	if err != nil {
		return nil, err
	}
	src := storeSource{s}
	framesPerTR := models.FramesPerTR(s.cfg.Fusion.TR, s.cfg.Evaluation.FPS)
	for _, seg := range segments {
		motion, err := src.Motion(ctx, seg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithField("segment", seg).Debugf("no motion targets: %v", err)
			continue
		}
		y := align.Bucket(motion.Sequence, framesPerTR)

		for _, subj := range subjects {
			tag := models.Tag{Subject: subj, Segment: seg}
			if tr.Seen(tag) {
				sum.Skipped++
				continue
			}
			plog := log.WithFields(map[string]any{"subject": subj, "segment": seg})
			x, err := src.Embedding(ctx, mode, subj, seg)
			if err != nil {
				if !errors.Is(err, models.ErrMissingInput) {
					plog.Warnf("failed to load embedding: %v", err)
				}
				continue
			}
			x, err = neg.Fit(x, arch.InDim)
			if err != nil {
				plog.Warnf("skipping pair: %v", err)
				continue
			}
			p := regress.Pair{Tag: tag, X: x, Y: y}
			if n := s.cfg.Decoder.SeqLen; n > 0 {
				p.X, p.Y = p.X.Head(n), p.Y.Head(n)
			}
			before := tr.Samples()
			if err := tr.Add(ctx, p); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				plog.Warnf("skipping pair: %v", err)
				continue
			}
			if tr.Samples() > before {
				sum.Pairs++
			}
		}
	}

	// 3. Solve and publish the checkpoint
	if err := tr.Solve(); err != nil {
		return sum, err
	}
	out, err := regress.EncodeCheckpoint(tr.Checkpoint(string(mode)))
	if err != nil {
		return sum, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := s.store.Put(ctx, ckPath, out); err != nil {
		return sum, err
	}
	if _, err := s.ledger.Complete(ctx, StageTrain, string(mode), []string{ckPath}); err != nil {
		return sum, err
	}

	sum.Samples = tr.Samples()
	log.Infof("trained on %d new pairs (%d already seen), %s timepoints total",
		sum.Pairs, sum.Skipped, humanize.Comma(int64(sum.Samples)))
	return sum, nil
}

// transferEncoder copies the brain decoder's encoder weights into dec.
// Incompatible widths leave dec freshly initialized.
func (s *PipelineService) transferEncoder(ctx context.Context, dec *regress.Decoder, log *logger.Logger) {
	path := s.layout.Checkpoint(string(evaluate.ModeFMRI))
	data, err := s.store.Get(ctx, path)
	if err != nil {
		log.Warnf("no brain decoder to transfer from: %v", err)
		return
	}
	ck, err := regress.DecodeCheckpoint(data)
	if err != nil {
		log.Warnf("%v", err)
		return
	}
	rep, err := dec.LoadEncoderOnly(ck.State)
	if err != nil {
		log.Warnf("encoder transfer skipped: %v", err)
		return
	}
	log.Infof("transferred %d encoder tensors from %s", len(rep.Matched), path)
}
