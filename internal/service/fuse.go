package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/himanishpuri/NeuroMotion/internal/align"
	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/fusion"
	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// segmentColumn names the segment id column of the segments table.
const segmentColumn = "video_id"

// ReadSegmentsCSV returns the distinct values of the video_id column in
// file order.
func ReadSegmentsCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: StageFuse}
		}
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	col := slices.Index(rows[0], segmentColumn)
	if col < 0 {
		return nil, fmt.Errorf("%s has no %s column", path, segmentColumn)
	}
	var out []string
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		seg := strings.TrimSpace(row[col])
		if seg != "" && !seen[seg] {
			seen[seg] = true
			out = append(out, seg)
		}
	}
	return out, nil
}

// fusionInputs is the layout the fusion stage reads brain and audio
// embeddings from.
func (s *PipelineService) fusionInputs() artifact.Layout {
	in := s.layout
	in.FMRIOut = s.cfg.Fusion.FMRIRoot
	in.AudioOut = s.cfg.Fusion.AudioRoot
	return in
}

// fusionSegments lists segments for subject: the configured table when
// set, else the subject's segment directories.
func (s *PipelineService) fusionSegments(subject string, table []string) ([]string, error) {
	if table != nil {
		return table, nil
	}
	return subdirs(filepath.Join(s.cfg.Fusion.FMRIRoot, subject))
}

// NewFusionEngine builds the engine and loads stored weights when the
// model directory has them.
func (s *PipelineService) NewFusionEngine(ctx context.Context) (*fusion.Engine, error) {
	eng, err := fusion.NewEngine(s.cfg.Fusion, s.exec, s.log)
	if err != nil {
		return nil, err
	}
	sd, err := artifact.GetState(ctx, s.store, s.layout.FusionWeights(), StageFuse)
	switch {
	case errors.Is(err, models.ErrMissingInput):
		s.log.Debugf("no stored fusion weights, using seed %d", s.cfg.Fusion.Seed)
		return eng, nil
	case err != nil:
		return nil, err
	}
	rep, err := eng.Load(sd)
	if err != nil {
		return nil, err
	}
	s.log.Infof("loaded fusion weights (%d tensors)", len(rep.Matched))
	return eng, nil
}

// FuseUnits returns one unit per subject and segment.
func (s *PipelineService) FuseUnits(ctx context.Context) ([]pipeline.Unit, error) {
	eng, err := s.NewFusionEngine(ctx)
	if err != nil {
		return nil, err
	}
	var table []string
	if s.cfg.Fusion.SegmentsCSV != "" {
		if table, err = ReadSegmentsCSV(s.cfg.Fusion.SegmentsCSV); err != nil {
			return nil, err
		}
	}
	subjects, err := s.subjects()
	if err != nil {
		return nil, err
	}

	var units []pipeline.Unit
	for _, subj := range subjects {
		segs, err := s.fusionSegments(subj, table)
		if err != nil {
			return nil, err
		}
		for _, seg := range segs {
			units = append(units, pipeline.Unit{
				Stage:   StageFuse,
				Key:     subj + "/" + seg,
				Subject: subj,
				Segment: seg,
				Outputs: []string{s.layout.Fused(subj, seg), s.layout.FusedMeta(subj, seg)},
				Run: func(ctx context.Context) error {
					_, err := s.FuseSegment(ctx, eng, subj, seg)
					return err
				},
			})
		}
	}
	return units, nil
}

// RunFuse fuses every pending subject segment.
func (s *PipelineService) RunFuse(ctx context.Context) (*pipeline.Report, error) {
	units, err := s.FuseUnits(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, units)
}

// FuseSegment aligns one segment's audio windows to its scan, fuses them
// with the brain embedding and publishes the result.
func (s *PipelineService) FuseSegment(ctx context.Context, eng *fusion.Engine, subject, segment string) (*artifact.FusedMeta, error) {
	log := s.log.WithFields(map[string]any{"subject": subject, "segment": segment, "stage": StageFuse})
	in := s.fusionInputs()
	cfg := s.cfg.Fusion

	// 1. Brain embedding; the sidecar gives the scan length
	brain, err := artifact.GetSequence(ctx, s.store, in.SegmentEmbedding(subject, segment), StageFuse)
	if err != nil {
		return nil, err
	}
	t := brain.Len()
	var sm artifact.SegmentMeta
	if err := artifact.GetJSON(ctx, s.store, in.SegmentMeta(subject, segment), StageFuse, &sm); err == nil && sm.NTR > 0 {
		t = min(t, sm.NTR)
	}

	// 2. Audio windows
	audioBase := segment + cfg.AudioSuffix
	seq, err := artifact.GetSequence(ctx, s.store, in.AudioEmbedding(audioBase, s.cfg.Audio.WinSec), StageFuse)
	if err != nil {
		return nil, err
	}
	am := artifact.AudioMeta{WinSec: s.cfg.Audio.WinSec, HopSec: s.cfg.Audio.HopSec}
	if err := artifact.GetJSON(ctx, s.store, in.AudioMeta(audioBase, s.cfg.Audio.WinSec), StageFuse, &am); err != nil {
		log.Debugf("no audio sidecar, assuming win %gs hop %gs", am.WinSec, am.HopSec)
	}
	windows := &models.AudioWindowSequence{Sequence: seq, WinSec: am.WinSec, HopSec: am.HopSec}

	// 3. Align to TR
	aligned := align.Align(windows, t, cfg.TR)
	log.Debugf("aligned %d windows to %d TRs (%s)", windows.Len(), t, aligned.Regime)

	// 4. Fuse
	b, a := eng.Prepare(brain, aligned.Sequence, cfg.SeqLen)
	fused, err := eng.Fuse(models.Tag{Subject: subject, Segment: segment}, b, a)
	if err != nil {
		return nil, err
	}

	// 5. Publish embedding, then sidecar
	meta := &artifact.FusedMeta{
		Subject:         subject,
		Segment:         segment,
		NTimepoints:     fused.Len(),
		EmbeddingDim:    fused.Dim(),
		FusionModelName: fusion.ModelName,
		Status:          "success",
	}
	if err := artifact.PutSequence(ctx, s.store, s.layout.Fused(subject, segment), fused.Sequence); err != nil {
		return nil, err
	}
	if err := artifact.PutJSON(ctx, s.store, s.layout.FusedMeta(subject, segment), meta); err != nil {
		return nil, err
	}
	log.Infof("fused %d×%d", meta.NTimepoints, meta.EmbeddingDim)
	return meta, nil
}
