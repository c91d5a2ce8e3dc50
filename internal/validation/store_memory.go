package validation

import (
	"context"
	"sync"

	"veritax/pkg/domain"
	dErrors "veritax/pkg/domain-errors"
)

// MemoryRunStore is an in-memory RunStore for development and tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[domain.RunID]Run
}

// NewMemoryRunStore creates an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[domain.RunID]Run)}
}

func (s *MemoryRunStore) Create(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) Update(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "run %s not found", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) Get(ctx context.Context, id domain.RunID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, dErrors.Newf(dErrors.CodeNotFound, "run %s not found", id)
	}
	return run, nil
}
