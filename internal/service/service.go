// Package service wires the numeric stages to the artifact store, the job
// ledger and the results database.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/audio"
	"github.com/himanishpuri/NeuroMotion/internal/execctx"
	"github.com/himanishpuri/NeuroMotion/internal/ledger"
	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/internal/spectral"
	"github.com/himanishpuri/NeuroMotion/internal/storage"
	"github.com/himanishpuri/NeuroMotion/internal/video"
	"github.com/himanishpuri/NeuroMotion/internal/voxel"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
)

// Ledger stage names.
const (
	StageFMRI     = "fmri"
	StageAudio    = "audio"
	StageFuse     = "fuse"
	StageTrain    = "train"
	StageEvaluate = "evaluate"
	StageMotion   = "motion"
	StageVideo    = "video"
)

// Deps are optional collaborators. Anything left nil is built from the
// configuration and closed by Close.
type Deps struct {
	Store    artifact.Store
	Ledger   ledger.Ledger
	DB       *storage.DBClient
	Backbone audio.Backbone
	Scans    voxel.ScanLoader
	Video    *video.Client
	Log      *logger.Logger
}

type PipelineService struct {
	cfg      *config.Root
	exec     execctx.Context
	store    artifact.Store
	ledger   ledger.Ledger
	db       *storage.DBClient
	layout   artifact.Layout
	runner   *pipeline.Runner
	scans    voxel.ScanLoader
	backbone audio.Backbone
	video    *video.Client
	log      *logger.Logger

	closers []func() error
}

// NewBackbone returns the frame encoder named by cfg.
func NewBackbone(cfg config.Backbone) (audio.Backbone, error) {
	switch cfg.Name {
	case "", "spectral":
		return spectral.NewBackbone(cfg.SampleRate, cfg.FeatureDim), nil
	case "remote":
		if cfg.URL == "" {
			return nil, errors.New("audio.backbone.url is required for the remote backbone")
		}
		return audio.NewRemoteBackbone(cfg.URL, "wav2vec2", cfg.SampleRate, cfg.FrameHz, cfg.FeatureDim), nil
	}
	return nil, fmt.Errorf("unknown audio backbone %q", cfg.Name)
}

func NewPipelineService(cfg *config.Root, deps Deps) (*PipelineService, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := deps.Log
	if log == nil {
		log = logger.GetLogger()
	}
	ec, err := execctx.FromConfig(cfg.Exec)
	if err != nil {
		return nil, err
	}

	s := &PipelineService{
		cfg:      cfg,
		exec:     ec,
		store:    deps.Store,
		ledger:   deps.Ledger,
		db:       deps.DB,
		layout:   artifact.LayoutFromConfig(cfg),
		scans:    deps.Scans,
		backbone: deps.Backbone,
		video:    deps.Video,
		log:      log,
	}

	// 1. Artifact store
	if s.store == nil {
		if s.store, err = artifact.Open(cfg.Store); err != nil {
			return nil, fmt.Errorf("failed to open artifact store: %w", err)
		}
	}

	// 2. Job ledger
	if s.ledger == nil {
		if s.ledger, err = ledger.Open(cfg.Ledger, log); err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		s.closers = append(s.closers, s.ledger.Close)
	}

	// 3. Results database
	if s.db == nil {
		if s.db, err = storage.NewDBClientWithPath(cfg.DBPath); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open results database: %w", err)
		}
		s.closers = append(s.closers, s.db.Close)
	}

	// 4. Stage collaborators
	if s.scans == nil {
		s.scans = voxel.NIfTILoader{NormalizePerRun: cfg.FMRI.NormalizePerRun}
	}
	if s.backbone == nil {
		if s.backbone, err = NewBackbone(cfg.Audio.Backbone); err != nil {
			s.Close()
			return nil, err
		}
	}
	if s.video == nil && cfg.Video.URL != "" {
		s.video = video.NewClient(cfg.Video.URL)
	}

	s.runner = pipeline.NewRunner(s.ledger, s.store, ec.MaxParallel, log)
	log.Debugf("pipeline service ready (%s, store=%s, ledger=%s)", ec, orDefault(cfg.Store.Backend, "local"),
		orDefault(cfg.Ledger.Backend, "sqlite"))
	return s, nil
}

func (s *PipelineService) Config() *config.Root { return s.cfg }
func (s *PipelineService) Store() artifact.Store { return s.store }
func (s *PipelineService) Ledger() ledger.Ledger { return s.ledger }
func (s *PipelineService) DB() *storage.DBClient { return s.db }
func (s *PipelineService) Layout() artifact.Layout { return s.layout }
func (s *PipelineService) Runner() *pipeline.Runner { return s.runner }

// Jobs lists completed units for stage; empty stage lists all.
func (s *PipelineService) Jobs(ctx context.Context, stage string) ([]ledger.Record, error) {
	return s.ledger.List(ctx, stage)
}

// Forget drops a unit's ledger record so the next run redoes it unless
// its outputs are still present.
func (s *PipelineService) Forget(ctx context.Context, stage, key string) error {
	return s.ledger.Forget(ctx, stage, key)
}

// Close releases everything NewPipelineService opened itself.
func (s *PipelineService) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// subdirs lists visible directories under dir, sorted. A missing dir is
// empty.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// subjects returns the configured subject list, or the subject
// directories of the brain embedding tree.
func (s *PipelineService) subjects() ([]string, error) {
	if len(s.cfg.Evaluation.Subjects) > 0 {
		return s.cfg.Evaluation.Subjects, nil
	}
	return subdirs(s.cfg.Fusion.FMRIRoot)
}
