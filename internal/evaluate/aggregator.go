// Package evaluate scores brain-only and fused decoders against motion
// ground truth at scan resolution.
package evaluate

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/NeuroMotion/internal/align"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Mode is one decoder input family.
type Mode string

const (
	ModeFMRI   Mode = "fmri"
	ModeFusion Mode = "fusion"
)

// Predictor is a decoder with a declared input width.
type Predictor interface {
	InDim() int
	Predict(ctx context.Context, x *models.Sequence) (*models.Sequence, error)
}

// Source supplies motion ground truth and per-subject embeddings. Absent
// inputs are reported as *models.MissingInputError.
type Source interface {
	Motion(ctx context.Context, segment string) (*models.MotionTargetSequence, error)
	Embedding(ctx context.Context, mode Mode, subject, segment string) (*models.Sequence, error)
}

type Aggregator struct {
	Subjects   []string
	TR         float64
	FPS        float64
	Decoders   map[Mode]Predictor
	Negotiator *Negotiator
	Source     Source

	log *logger.Logger
}

func NewAggregator(src Source, fmri, fusion Predictor, subjects []string, tr, fps float64,
	neg *Negotiator, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.GetLogger()
	}
	if neg == nil {
		neg = NewNegotiator(PolicyReject)
	}
	return &Aggregator{
		Subjects:   subjects,
		TR:         tr,
		FPS:        fps,
		Decoders:   map[Mode]Predictor{ModeFMRI: fmri, ModeFusion: fusion},
		Negotiator: neg,
		Source:     src,
		log:        log,
	}
}

// Evaluate returns one record per segment that has ground truth of at least
// one TR block and at least one subject's prediction for both modes. Other
// segments are left out. Only context cancellation aborts the run.
func (a *Aggregator) Evaluate(ctx context.Context, segments []string) ([]models.MetricsRecord, error) {
	var records []models.MetricsRecord
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec, ok, err := a.EvaluateSegment(ctx, seg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return records, err
			}
			a.log.WithFields(map[string]any{"segment": seg, "stage": "evaluate"}).Errorf("%v", err)
			continue
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// EvaluateSegment scores one segment. ok is false when the segment is
// excluded.
func (a *Aggregator) EvaluateSegment(ctx context.Context, segment string) (models.MetricsRecord, bool, error) {
	log := a.log.WithFields(map[string]any{"segment": segment, "stage": "evaluate"})

	// 1. Ground truth at TR resolution
	motion, err := a.Source.Motion(ctx, segment)
	if err != nil {
		if errors.Is(err, models.ErrMissingInput) {
			log.Debugf("no motion ground truth, skipping")
			return models.MetricsRecord{}, false, nil
		}
		return models.MetricsRecord{}, false, fmt.Errorf("load motion: %w", err)
	}
	fps := a.FPS
	if motion.FPS > 0 {
		fps = motion.FPS
	}
	gt := align.Bucket(motion.Sequence, models.FramesPerTR(a.TR, fps))
	if gt.Len() == 0 {
		log.Debugf("motion shorter than one TR block, skipping")
		return models.MetricsRecord{}, false, nil
	}

	// 2. Subject-averaged predictions per mode
	avg := make(map[Mode]*models.Sequence, 2)
	for _, mode := range []Mode{ModeFMRI, ModeFusion} {
		preds, err := a.predictions(ctx, log, mode, segment, gt.Len())
		if err != nil {
			return models.MetricsRecord{}, false, err
		}
		if len(preds) == 0 {
			log.Debugf("no %s predictions from any subject, skipping", mode)
			return models.MetricsRecord{}, false, nil
		}
		if len(preds) < len(a.Subjects) {
			log.Warnf("%s", models.PartialCoverageWarning{Segment: segment, Mode: string(mode),
				Have: len(preds), Expected: len(a.Subjects)})
		}
		avg[mode] = average(preds)
	}

	// 3. Score
	return models.MetricsRecord{
		Segment:    segment,
		MSEFMRI:    MSE(avg[ModeFMRI], gt),
		MSEFusion:  MSE(avg[ModeFusion], gt),
		CorrFMRI:   Pearson(avg[ModeFMRI], gt, 0),
		CorrFusion: Pearson(avg[ModeFusion], gt, 0),
	}, true, nil
}

// predictions runs one mode's decoder for every subject with an embedding,
// truncating each prediction to blocks rows. Subjects without input, or
// whose input cannot be negotiated, are skipped.
func (a *Aggregator) predictions(ctx context.Context, log *logger.Logger, mode Mode, segment string, blocks int) ([]*models.Sequence, error) {
	dec := a.Decoders[mode]
	if dec == nil {
		return nil, nil
	}
	var preds []*models.Sequence
	for _, subj := range a.Subjects {
		slog := log.WithFields(map[string]any{"subject": subj, "mode": string(mode)})

		emb, err := a.Source.Embedding(ctx, mode, subj, segment)
		if err != nil {
			if errors.Is(err, models.ErrMissingInput) {
				slog.Debugf("no embedding")
				continue
			}
			slog.Warnf("failed to load embedding: %v", err)
			continue
		}
		x, err := a.Negotiator.Fit(emb, dec.InDim())
		if err != nil {
			slog.Warnf("%v", err)
			continue
		}
		pred, err := dec.Predict(ctx, x)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warnf("prediction failed: %v", err)
			continue
		}
		if pred.Len() == 0 {
			continue
		}
		preds = append(preds, pred.Head(blocks))
	}
	return preds, nil
}

// average is the elementwise mean over the common leading rows.
func average(seqs []*models.Sequence) *models.Sequence {
	n := seqs[0].Len()
	for _, s := range seqs[1:] {
		n = min(n, s.Len())
	}
	out := models.NewSequence(n, seqs[0].Dim())
	for _, s := range seqs {
		for i := range out.Data {
			out.Data[i] += s.Data[i]
		}
	}
	for i := range out.Data {
		out.Data[i] /= float64(len(seqs))
	}
	return out
}
