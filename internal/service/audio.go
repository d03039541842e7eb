package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/audio"
	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

// AudioFiles lists stimulus files in the input directory with a
// configured extension, sorted.
func (s *PipelineService) AudioFiles() ([]string, error) {
	dir := s.cfg.Audio.InputDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: dir, Stage: StageAudio}
		}
		return nil, fmt.Errorf("failed to list audio: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(s.cfg.Audio.Extensions, ext) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// AudioUnits returns one unit per stimulus file.
func (s *PipelineService) AudioUnits(ctx context.Context) ([]pipeline.Unit, error) {
	files, err := s.AudioFiles()
	if err != nil {
		return nil, err
	}
	win := s.cfg.Audio.WinSec
	units := make([]pipeline.Unit, 0, len(files))
	for _, path := range files {
		base := utils.TrimExt(path)
		units = append(units, pipeline.Unit{
			Stage:   StageAudio,
			Key:     artifact.AudioBase(base, win),
			Segment: base,
			Outputs: []string{s.layout.AudioEmbedding(base, win), s.layout.AudioMeta(base, win)},
			Run: func(ctx context.Context) error {
				_, err := s.EmbedAudio(ctx, path)
				return err
			},
		})
	}
	return units, nil
}

// RunAudio embeds every pending stimulus file.
func (s *PipelineService) RunAudio(ctx context.Context) (*pipeline.Report, error) {
	units, err := s.AudioUnits(ctx)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, units)
}

// EmbedAudio turns one stimulus file into pooled, optionally standardized
// windows and publishes them with a sidecar.
func (s *PipelineService) EmbedAudio(ctx context.Context, path string) (*artifact.AudioMeta, error) {
	cfg := s.cfg.Audio
	base := utils.TrimExt(path)
	log := s.log.WithFields(map[string]any{"segment": base, "stage": StageAudio})

	// 1. Decode to mono at the backbone rate
	loader := audio.Loader{SampleRate: s.backbone.SampleRate(), TempDir: os.TempDir()}
	wave, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %.1fs (%s samples)", wave.Duration(), humanize.Comma(int64(len(wave.Samples))))

	// 2. Frame features over overlapping chunks
	ex, err := audio.NewExtractor(s.backbone, cfg.ChunkSec, cfg.OverlapSec, log)
	if err != nil {
		return nil, err
	}
	frames, err := ex.Extract(ctx, wave.Samples)
	if err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w", err)
	}

	// 3. Pool into windows
	windows := audio.Pool(frames, s.backbone.FrameHz(), cfg.WinSec, cfg.HopSec)
	if cfg.ZScore {
		audio.ZScore(windows.Sequence)
	}
	s.exec.Round(windows.Data)

	// 4. Publish embedding, then sidecar
	meta := &artifact.AudioMeta{
		AudioSourcePath: path,
		BackboneName:    s.backbone.Name(),
		WindowCount:     windows.Len(),
		FeatureDim:      windows.Dim(),
		WinSec:          cfg.WinSec,
		HopSec:          cfg.HopSec,
	}
	if err := artifact.PutSequence(ctx, s.store, s.layout.AudioEmbedding(base, cfg.WinSec), windows.Sequence); err != nil {
		return nil, err
	}
	if err := artifact.PutJSON(ctx, s.store, s.layout.AudioMeta(base, cfg.WinSec), meta); err != nil {
		return nil, err
	}

	log.Infof("%d frames -> %d windows of %gs", frames.Len(), windows.Len(), cfg.WinSec)
	return meta, nil
}
