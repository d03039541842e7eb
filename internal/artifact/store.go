// Package artifact persists pipeline outputs: T×D arrays, JSON sidecars and
// checkpoints, on local disk or an S3-compatible bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

// Store is a whole-object store. Put publishes data atomically: readers
// either see the previous object or the complete new one.
//
// Missing objects are reported with an error wrapping fs.ErrNotExist.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Local stores objects as files. Relative paths resolve against Root,
// absolute paths are used as given.
type Local struct {
	Root string
}

func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) resolve(path string) string {
	if filepath.IsAbs(path) || l.Root == "" {
		return filepath.FromSlash(path)
	}
	return filepath.Join(l.Root, filepath.FromSlash(path))
}

func (l *Local) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact: read %s: %w", path, fs.ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}

func (l *Local) Put(_ context.Context, path string, data []byte) error {
	return utils.WriteFileAtomic(l.resolve(path), data)
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

var _ Store = (*Local)(nil)
