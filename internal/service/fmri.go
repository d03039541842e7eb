package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/internal/voxel"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// FMRIUnits discovers every subject segment with at least one scan run.
func (s *PipelineService) FMRIUnits(ctx context.Context) ([]pipeline.Unit, error) {
	root := s.cfg.FMRI.Root
	subjects, err := voxel.Subjects(root)
	if err != nil {
		return nil, err
	}

	var units []pipeline.Unit
	for _, subj := range subjects {
		segs, err := voxel.FindSegments(voxel.SubjectScanRoot(root, subj), subj, s.cfg.FMRI.UseMNI)
		if err != nil {
			if errors.Is(err, models.ErrMissingInput) {
				s.log.WithField("subject", subj).Warnf("%v", err)
				continue
			}
			return nil, err
		}
		for _, seg := range segs {
			if len(seg.Runs) == 0 {
				s.log.WithFields(map[string]any{"subject": subj, "segment": seg.Name}).Debugf("no scan runs")
				continue
			}
			units = append(units, pipeline.Unit{
				Stage:   StageFMRI,
				Key:     subj + "/" + seg.Name,
				Subject: subj,
				Segment: seg.Name,
				Outputs: s.fmriOutputs(seg),
				Run: func(ctx context.Context) error {
					_, err := s.EmbedSegment(ctx, seg)
					return err
				},
			})
		}
	}
	s.log.Infof("found %d segments across %d subjects", len(units), len(subjects))
	return units, nil
}

func (s *PipelineService) fmriOutputs(seg voxel.Segment) []string {
	out := []string{s.layout.SegmentMeta(seg.Subject, seg.Name)}
	if s.cfg.FMRI.MergeRuns {
		return append(out, s.layout.SegmentEmbedding(seg.Subject, seg.Name))
	}
	for _, r := range seg.Runs {
		out = append(out, s.layout.RunEmbedding(seg.Subject, seg.Name, filepath.Base(r)))
	}
	return out
}

// RunFMRI embeds every pending segment.
func (s *PipelineService) RunFMRI(ctx context.Context) (*pipeline.Report, error) {
	units, err := s.FMRIUnits(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, units)
}

// EmbedSegment embeds each run of seg, then publishes the run-averaged
// embedding and its sidecar. A single run is published as the average
// unchanged.
func (s *PipelineService) EmbedSegment(ctx context.Context, seg voxel.Segment) (*artifact.SegmentMeta, error) {
	log := s.log.WithFields(map[string]any{"subject": seg.Subject, "segment": seg.Name, "stage": StageFMRI})
	emb := voxel.NewEmbedder(s.cfg.FMRI.NComponents, s.cfg.FMRI.BatchSize, s.exec, log)

	meta := &artifact.SegmentMeta{Subject: seg.Subject, Segment: seg.Name}
	runs := make([]*models.Sequence, 0, len(seg.Runs))

	// 1. Embed each run
	for _, path := range seg.Runs {
		runFile := filepath.Base(path)
		ts, _, err := s.scans.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", runFile, err)
		}
		res, err := emb.Embed(ctx, ts)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", runFile, err)
		}
		if err := artifact.PutSequence(ctx, s.store, s.layout.RunEmbedding(seg.Subject, seg.Name, runFile), res.Embedding); err != nil {
			return nil, err
		}
		log.Debugf("%s: %s", runFile, res.Embedding)
		runs = append(runs, res.Embedding)
		meta.Runs = append(meta.Runs, runFile)
		meta.ExplainedVariance += res.ExplainedVariance / float64(len(seg.Runs))
	}

	// 2. Merge runs
	avg := runs[0]
	if s.cfg.FMRI.MergeRuns && len(runs) > 1 {
		merged, err := voxel.MergeRuns(runs...)
		if err != nil {
			return nil, err
		}
		avg = merged
	}
	meta.NTR = avg.Len()
	meta.NComponents = avg.Dim()

	// 3. Publish segment embedding, then sidecar
	if s.cfg.FMRI.MergeRuns {
		if err := artifact.PutSequence(ctx, s.store, s.layout.SegmentEmbedding(seg.Subject, seg.Name), avg); err != nil {
			return nil, err
		}
	}
	if err := artifact.PutJSON(ctx, s.store, s.layout.SegmentMeta(seg.Subject, seg.Name), meta); err != nil {
		return nil, err
	}

	log.Infof("embedded %d runs -> %d×%d (explained variance %.3f)", len(runs), meta.NTR, meta.NComponents,
		meta.ExplainedVariance)
	return meta, nil
}
