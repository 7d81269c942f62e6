package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/felixgeelhaar/repoagent/domain/run"
)

// RunStore is an in-memory implementation of run.Store. Checkpoints are
// stored encoded so callers never share memory with the store.
type RunStore struct {
	runs map[string][]byte
	mu   sync.RWMutex
}

// NewRunStore creates a new in-memory checkpoint store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string][]byte)}
}

// Save upserts a checkpoint.
func (s *RunStore) Save(ctx context.Context, cp *run.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.RunID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[cp.RunID] = data
	return nil
}

// Get retrieves a checkpoint by run ID.
func (s *RunStore) Get(ctx context.Context, runID string) (*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, run.ErrInvalidRunID
	}

	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, run.ErrRunNotFound
	}

	var cp run.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes a checkpoint by run ID.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" {
		return run.ErrInvalidRunID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return run.ErrRunNotFound
	}
	delete(s.runs, runID)
	return nil
}

// List returns checkpoints matching the filter, most recently updated first.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*run.Checkpoint
	for _, data := range s.runs {
		var cp run.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if filter.Matches(&cp) {
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored checkpoints.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

var _ run.Store = (*RunStore)(nil)
