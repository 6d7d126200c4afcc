package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/store"
)

// RunStore is a mutex-guarded in-process implementation of store.RunStore.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*domain.RunRecord
}

var _ store.RunStore = (*RunStore)(nil)

// NewRunStore creates an empty in-process run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.RunRecord),
	}
}

// Add persists a new run record. Returns store.ErrDuplicate if a record
// with the same id already exists.
func (s *RunStore) Add(ctx context.Context, run *domain.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("%w: run %s", store.ErrDuplicate, run.ID)
	}

	s.runs[run.ID] = copyRun(run)
	return nil
}

// Get returns the run for the given id, or store.ErrRunNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, store.ErrRunNotFound
	}

	return copyRun(run), nil
}

// SetStatus updates the run's aggregate status.
func (s *RunStore) SetStatus(ctx context.Context, id string, status domain.RunStatus) error {
	if !domain.IsValidRunStatus(status) {
		return domain.ErrInvalidRunStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return store.ErrRunNotFound
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// copyRun deep-copies a run record.
func copyRun(run *domain.RunRecord) *domain.RunRecord {
	clone := *run
	clone.TaskIDs = append([]string(nil), run.TaskIDs...)
	clone.Payload = copyMap(run.Payload)
	clone.Metadata = copyMap(run.Metadata)
	return &clone
}
