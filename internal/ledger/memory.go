package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps records in a map. It does not survive the process.
type Memory struct {
	mu      sync.RWMutex
	records map[[2]string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[[2]string]Record)}
}

func (m *Memory) Get(_ context.Context, stage, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[[2]string{stage, key}]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) Complete(_ context.Context, stage, key string, outputs []string) (*Record, error) {
	r := Record{
		ID:          uuid.NewString(),
		Stage:       stage,
		Key:         key,
		Outputs:     append([]string(nil), outputs...),
		CompletedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.records[[2]string{stage, key}] = r
	m.mu.Unlock()
	return &r, nil
}

func (m *Memory) List(_ context.Context, stage string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, r := range m.records {
		if stage == "" || k[0] == stage {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Forget(_ context.Context, stage, key string) error {
	m.mu.Lock()
	delete(m.records, [2]string{stage, key})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Stage != rs[j].Stage {
			return rs[i].Stage < rs[j].Stage
		}
		return rs[i].Key < rs[j].Key
	})
}
