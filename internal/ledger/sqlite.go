package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/himanishpuri/NeuroMotion/internal/storage"
)

// SQLite keeps the ledger in the jobs table of a storage.DBClient.
type SQLite struct {
	client *storage.DBClient
	owned  bool
}

// NewSQLite opens (or creates) a database at path. A path without an
// extension is treated as a directory holding ledger.sqlite3.
func NewSQLite(path string) (*SQLite, error) {
	if filepath.Ext(path) == "" {
		path = filepath.Join(path, "ledger.sqlite3")
	}
	c, err := storage.NewDBClientWithPath(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{client: c, owned: true}, nil
}

// WithDBClient shares an already open database. Close leaves it open.
func WithDBClient(c *storage.DBClient) *SQLite {
	return &SQLite{client: c}
}

func fromJob(j *storage.Job) *Record {
	return &Record{
		ID:          j.ID,
		Stage:       j.Stage,
		Key:         j.Key,
		Outputs:     j.OutputList(),
		CompletedAt: j.CompletedAt,
	}
}

func (s *SQLite) Get(_ context.Context, stage, key string) (*Record, error) {
	j, err := s.client.GetJob(stage, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromJob(j), nil
}

func (s *SQLite) Complete(_ context.Context, stage, key string, outputs []string) (*Record, error) {
	for _, o := range outputs {
		if strings.Contains(o, "\n") {
			return nil, errors.New("ledger: output path contains a newline")
		}
	}
	j, err := s.client.CompleteJob(stage, key, outputs, time.Now())
	if err != nil {
		return nil, err
	}
	return fromJob(j), nil
}

func (s *SQLite) List(_ context.Context, stage string) ([]Record, error) {
	jobs, err := s.client.ListJobs(stage)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(jobs))
	for i := range jobs {
		out = append(out, *fromJob(&jobs[i]))
	}
	return out, nil
}

func (s *SQLite) Forget(_ context.Context, stage, key string) error {
	return s.client.DeleteJob(stage, key)
}

func (s *SQLite) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
