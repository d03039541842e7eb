// Package ledger records which units of work have completed. A record is
// written only after a unit's outputs are published, so its presence means
// the unit can be skipped.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
)

var ErrNotFound = errors.New("ledger: record not found")

// Record is one completed unit.
type Record struct {
	ID          string    `json:"id" msgpack:"id"`
	Stage       string    `json:"stage" msgpack:"stage"`
	Key         string    `json:"key" msgpack:"key"`
	Outputs     []string  `json:"outputs" msgpack:"outputs"`
	CompletedAt time.Time `json:"completed_at" msgpack:"completed_at"`
}

// Ledger is safe for concurrent use.
type Ledger interface {
	// Get returns ErrNotFound for units that never completed.
	Get(ctx context.Context, stage, key string) (*Record, error)
	// Complete records a unit, replacing any earlier record for it.
	Complete(ctx context.Context, stage, key string, outputs []string) (*Record, error)
	// List returns records for stage ordered by key; empty stage lists all.
	List(ctx context.Context, stage string) ([]Record, error)
	Forget(ctx context.Context, stage, key string) error
	Close() error
}

// Done reports whether a record exists.
func Done(ctx context.Context, l Ledger, stage, key string) (bool, error) {
	_, err := l.Get(ctx, stage, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Open returns the backend named by cfg.Backend.
func Open(cfg config.Ledger, log *logger.Logger) (Ledger, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "badger":
		return NewBadger(BadgerOptions{Dir: cfg.Path, Logger: log})
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}
