package neuromotion

import (
	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/ledger"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
)

// NewLocalStore keeps artifacts on disk under root. Absolute paths are
// used as given.
func NewLocalStore(root string) Store {
	return artifact.NewLocal(root)
}

// NewS3Store keeps artifacts in a bucket, keyed under cfg.Prefix.
func NewS3Store(cfg config.Store) (Store, error) {
	return artifact.NewS3FromConfig(cfg)
}

// NewSQLiteLedger records completed units in a SQLite database at path.
func NewSQLiteLedger(path string) (Ledger, error) {
	return ledger.NewSQLite(path)
}

// NewBadgerLedger records completed units in a BadgerDB directory.
func NewBadgerLedger(dir string) (Ledger, error) {
	return ledger.NewBadger(ledger.BadgerOptions{Dir: dir, Logger: logger.GetLogger()})
}

// NewMemoryLedger forgets everything when the process exits.
func NewMemoryLedger() Ledger {
	return ledger.NewMemory()
}
