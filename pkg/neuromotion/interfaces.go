package neuromotion

import (
	"context"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/audio"
	"github.com/himanishpuri/NeuroMotion/internal/ledger"
	"github.com/himanishpuri/NeuroMotion/internal/storage"
	"github.com/himanishpuri/NeuroMotion/internal/voxel"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

type Service interface {
	EmbedFMRI(ctx context.Context) (*Report, error)
	EmbedAudio(ctx context.Context) (*Report, error)
	Fuse(ctx context.Context) (*Report, error)
	ImportMotion(ctx context.Context, csvPath, segment string) (string, error)
	Train(ctx context.Context, mode Mode) (*TrainSummary, error)
	Evaluate(ctx context.Context) (*EvaluationResult, error)
	LatestResults() ([]models.MetricsRecord, error)
	Stats() (*Stats, error)
	GenerateVideo(ctx context.Context, subject, segment string, seedImage []byte) (*VideoResult, error)
	Jobs(ctx context.Context, stage string) ([]Job, error)
	Forget(ctx context.Context, stage, key string) error
	Close() error
}

// Store holds pipeline artifacts by slash-separated path.
type Store = artifact.Store

// Ledger records completed units of work.
type Ledger = ledger.Ledger

// Backbone turns a waveform into per-frame audio features.
type Backbone = audio.Backbone

// ScanLoader reads one scan run as a T×V voxel matrix.
type ScanLoader = voxel.ScanLoader

// Stats counts recorded jobs and evaluation rows.
type Stats = storage.Stats
