package neuromotion

import (
	"context"
	"fmt"

	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/internal/service"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// neuroService is the default implementation of the Service interface.
type neuroService struct {
	pipeline *service.PipelineService
	log      *logger.Logger
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}

	p, err := service.NewPipelineService(cfg.Pipeline, service.Deps{
		Store:    cfg.Store,
		Ledger:   cfg.Ledger,
		Backbone: cfg.Backbone,
		Scans:    cfg.ScanLoader,
		Video:    cfg.Video,
		Log:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &neuroService{pipeline: p, log: cfg.Logger}, nil
}

func report(r *pipeline.Report, err error) (*Report, error) {
	return newReport(r), err
}

// EmbedFMRI reduces every pending scan segment to a brain embedding.
func (s *neuroService) EmbedFMRI(ctx context.Context) (*Report, error) {
	return report(s.pipeline.RunFMRI(ctx))
}

// EmbedAudio pools backbone features of every pending stimulus file.
func (s *neuroService) EmbedAudio(ctx context.Context) (*Report, error) {
	return report(s.pipeline.RunAudio(ctx))
}

// Fuse cross-attends brain and audio embeddings per subject segment.
func (s *neuroService) Fuse(ctx context.Context) (*Report, error) {
	return report(s.pipeline.RunFuse(ctx))
}

func (s *neuroService) ImportMotion(ctx context.Context, csvPath, segment string) (string, error) {
	return s.pipeline.ImportMotion(ctx, csvPath, segment)
}

func (s *neuroService) Train(ctx context.Context, mode Mode) (*TrainSummary, error) {
	return s.pipeline.Train(ctx, mode)
}

func (s *neuroService) Evaluate(ctx context.Context) (*EvaluationResult, error) {
	return s.pipeline.Evaluate(ctx)
}

// LatestResults returns the records of the most recent evaluation.
func (s *neuroService) LatestResults() ([]models.MetricsRecord, error) {
	_, recs, err := s.pipeline.DB().LatestRun()
	return recs, err
}

func (s *neuroService) Stats() (*Stats, error) {
	return s.pipeline.DB().Stats()
}

func (s *neuroService) GenerateVideo(ctx context.Context, subject, segment string, seedImage []byte) (*VideoResult, error) {
	return s.pipeline.GenerateVideo(ctx, subject, segment, seedImage)
}

func (s *neuroService) Jobs(ctx context.Context, stage string) ([]Job, error) {
	recs, err := s.pipeline.Jobs(ctx, stage)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, len(recs))
	for i, r := range recs {
		jobs[i] = Job{Stage: r.Stage, Key: r.Key, Outputs: r.Outputs, CompletedAt: r.CompletedAt}
	}
	return jobs, nil
}

func (s *neuroService) Forget(ctx context.Context, stage, key string) error {
	return s.pipeline.Forget(ctx, stage, key)
}

func (s *neuroService) Close() error {
	return s.pipeline.Close()
}
