package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/himanishpuri/NeuroMotion/pkg/logger"
)

// keySep separates stage from key. Stages never contain it.
const keySep = "\x00"

// Badger stores records as msgpack values under "stage\x00key".
type Badger struct {
	db *badger.DB
}

type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir string

	// InMemory runs without disk persistence; used by tests.
	InMemory bool

	// Logger receives badger warnings and errors. Nil uses the global logger.
	Logger *logger.Logger
}

func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("ledger: badger dir is required for on-disk mode")
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func recordKey(stage, key string) []byte {
	return []byte(stage + keySep + key)
}

func (b *Badger) Get(_ context.Context, stage, key string) (*Record, error) {
	var r Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(stage, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *Badger) Complete(_ context.Context, stage, key string, outputs []string) (*Record, error) {
	r := Record{
		ID:          uuid.NewString(),
		Stage:       stage,
		Key:         key,
		Outputs:     outputs,
		CompletedAt: time.Now().UTC(),
	}
	val, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(stage, key), val)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *Badger) List(_ context.Context, stage string) ([]Record, error) {
	var prefix []byte
	if stage != "" {
		prefix = []byte(stage + keySep)
	}
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (b *Badger) Forget(_ context.Context, stage, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(stage, key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger forwards warnings and errors; badger's info and debug output
// is dropped.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Errorf("[badger] "+strings.TrimSpace(f), v...)
}
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warnf("[badger] "+strings.TrimSpace(f), v...)
}
func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
