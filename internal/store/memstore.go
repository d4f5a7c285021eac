package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// MemStore implements Store in memory.
type MemStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*Run)}
}

func (m *MemStore) SaveRun(_ context.Context, run *Run) error {
	if err := validate(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return cloneRun(r), nil
}

func (m *MemStore) ListRuns(_ context.Context, f Filter) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Run
	for _, r := range m.runs {
		if f.Target != "" && r.Target != f.Target {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		c := cloneRun(r)
		c.Verdicts = nil
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }

func cloneRun(r *Run) *Run {
	c := *r
	c.Report = append(json.RawMessage(nil), r.Report...)
	if len(c.Report) == 0 {
		c.Report = nil
	}
	c.Verdicts = make([]Verdict, len(r.Verdicts))
	for i, v := range r.Verdicts {
		v.Opinions = slices.Clone(v.Opinions)
		c.Verdicts[i] = v
	}
	if len(c.Verdicts) == 0 {
		c.Verdicts = nil
	}
	return &c
}
