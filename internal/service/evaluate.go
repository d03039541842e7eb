package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/evaluate"
	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/internal/regress"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// EvaluationResult is one evaluation pass. Cached is set when an existing
// results table was returned instead of recomputing it.
type EvaluationResult struct {
	RunID   string                 `json:"run_id,omitempty"`
	Path    string                 `json:"path"`
	Cached  bool                   `json:"cached"`
	Records []models.MetricsRecord `json:"records"`
}

// LoadDecoder rebuilds a trained decoder from its stored checkpoint.
func (s *PipelineService) LoadDecoder(ctx context.Context, mode evaluate.Mode) (*regress.Decoder, error) {
	path := s.layout.Checkpoint(string(mode))
	data, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &models.MissingInputError{Path: path, Stage: StageEvaluate}
		}
		return nil, err
	}
	ck, err := regress.DecodeCheckpoint(data)
	if err != nil {
		return nil, err
	}
	return regress.FromCheckpoint(ck, s.exec)
}

// inputWidth is the embedding width each mode produces.
func (s *PipelineService) inputWidth(mode evaluate.Mode) int {
	if mode == evaluate.ModeFMRI {
		return s.cfg.Fusion.DFMRI
	}
	return s.cfg.Fusion.DModel
}

// Negotiator applies the configured mismatch policy. Under the project
// policy every mode whose embedding width differs from its decoder gets a
// declared projection: stored weights when present, else a seeded map.
func (s *PipelineService) Negotiator(ctx context.Context, decoders map[evaluate.Mode]*regress.Decoder) (*evaluate.Negotiator, error) {
	policy, err := evaluate.ParsePolicy(s.cfg.Evaluation.Mismatch)
	if err != nil {
		return nil, err
	}
	neg := evaluate.NewNegotiator(policy)
	if policy != evaluate.PolicyProject {
		return neg, nil
	}
	for i, mode := range []evaluate.Mode{evaluate.ModeFMRI, evaluate.ModeFusion} {
		dec := decoders[mode]
		if dec == nil {
			continue
		}
		from, to := s.inputWidth(mode), dec.InDim()
		if from == to || neg.Declared(from, to) {
			continue
		}
		proj := nn.NewLinear(from, to, nn.NewRand(s.cfg.Decoder.Seed+2+uint64(i)))
		sd, err := artifact.GetState(ctx, s.store, s.layout.Projection(string(mode)), StageEvaluate)
		switch {
		case err == nil:
			if rep := proj.Params("").Load(sd); !rep.Complete() {
				return nil, &models.ShapeError{Op: "load projection", Want: from, Got: to, Detail: rep.String()}
			}
		case !errors.Is(err, models.ErrMissingInput):
			return nil, err
		}
		if err := neg.Declare(from, to, proj); err != nil {
			return nil, err
		}
		s.log.Infof("declared %s projection %d→%d", mode, from, to)
	}
	return neg, nil
}

// EvaluationSegments returns the configured held-out segments, or every
// segment with motion targets.
func (s *PipelineService) EvaluationSegments() ([]string, error) {
	if len(s.cfg.Evaluation.Segments) > 0 {
		return s.cfg.Evaluation.Segments, nil
	}
	return s.motionSegments(nil)
}

// Evaluate scores both decoders on the held-out segments and publishes the
// results table. An existing table is returned as is.
func (s *PipelineService) Evaluate(ctx context.Context) (*EvaluationResult, error) {
	path := s.cfg.Evaluation.ResultsCSV
	log := s.log.WithField("stage", StageEvaluate)

	// 0. Idempotency
	data, err := s.store.Get(ctx, path)
	switch {
	case err == nil:
		recs, err := evaluate.DecodeCSV(path, data)
		if err != nil {
			return nil, err
		}
		log.Infof("results already at %s (%d segments)", path, len(recs))
		return &EvaluationResult{Path: path, Cached: true, Records: recs}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// 1. Trained decoders
	decoders := make(map[evaluate.Mode]*regress.Decoder, 2)
	for _, mode := range []evaluate.Mode{evaluate.ModeFMRI, evaluate.ModeFusion} {
		dec, err := s.LoadDecoder(ctx, mode)
		if err != nil {
			return nil, fmt.Errorf("load %s decoder: %w", mode, err)
		}
		decoders[mode] = dec
	}

	// 2. Dimension policy
	neg, err := s.Negotiator(ctx, decoders)
	if err != nil {
		return nil, err
	}

	// 3. Score every segment
	subjects, err := s.subjects()
	if err != nil {
		return nil, err
	}
	segments, err := s.EvaluationSegments()
	if err != nil {
		return nil, err
	}
	agg := evaluate.NewAggregator(storeSource{s}, decoders[evaluate.ModeFMRI], decoders[evaluate.ModeFusion],
		subjects, s.cfg.Fusion.TR, s.cfg.Evaluation.FPS, neg, log)
	records, err := agg.Evaluate(ctx, segments)
	if err != nil {
		return nil, err
	}

	// 4. Publish table, results rows, then the ledger record
	data, err = evaluate.EncodeCSV(records)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, path, data); err != nil {
		return nil, err
	}
	runID, err := s.db.SaveResults(path, subjects, records)
	if err != nil {
		return nil, fmt.Errorf("failed to save results: %w", err)
	}
	if _, err := s.ledger.Complete(ctx, StageEvaluate, path, []string{path}); err != nil {
		return nil, err
	}

	log.Infof("evaluated %d of %d segments, run %s", len(records), len(segments), runID)
	return &EvaluationResult{RunID: runID, Path: path, Records: records}, nil
}
