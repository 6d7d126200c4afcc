package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/store"
)

// TaskStore is a mutex-guarded in-process implementation of
// store.TaskStore. Records are deep-copied on the way in and out so
// callers cannot mutate stored state behind the lock's back.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.TrackedTask
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty in-process task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*domain.TrackedTask),
	}
}

// Add persists a new tracked task. Returns store.ErrDuplicate if a record
// with the same id already exists.
func (s *TaskStore) Add(ctx context.Context, task *domain.TrackedTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}

	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Get returns the record for the given id, or store.ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.TrackedTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, store.ErrTaskNotFound
	}

	return copyTask(task), nil
}

// SetStatus updates the record's status, enforcing the forward-only
// transition rules.
func (s *TaskStore) SetStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return store.ErrTaskNotFound
	}

	if task.Terminal() {
		return fmt.Errorf("%w: task %s", store.ErrTaskTerminal, id)
	}

	if !domain.CanTransition(task.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.Status, status)
	}

	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendHistory appends one entry to the record's audit trail.
func (s *TaskStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return store.ErrTaskNotFound
	}

	task.History = append(task.History, entry)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// BeginAttempt atomically marks the record running, increments its attempt
// counter, and appends a history entry. The whole step happens under one
// lock acquisition, mirroring the single-UPDATE guarantee of the SQL
// stores.
func (s *TaskStore) BeginAttempt(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return 0, store.ErrTaskNotFound
	}

	if task.Terminal() {
		return 0, fmt.Errorf("%w: task %s", store.ErrTaskTerminal, id)
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusRunning
	task.Attempts++
	task.History = append(task.History, domain.HistoryEntry{
		Timestamp: now,
		Status:    domain.TaskStatusRunning,
		Notes:     fmt.Sprintf("attempt %d started", task.Attempts),
	})
	task.UpdatedAt = now
	return task.Attempts, nil
}

// All returns every record in the store, ordered by creation time.
func (s *TaskStore) All(ctx context.Context) ([]*domain.TrackedTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*domain.TrackedTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, copyTask(task))
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// copyTask deep-copies a tracked task record.
func copyTask(task *domain.TrackedTask) *domain.TrackedTask {
	clone := *task
	clone.History = append([]domain.HistoryEntry(nil), task.History...)
	clone.Payload = copyMap(task.Payload)
	return &clone
}

// copyMap shallow-copies an opaque payload map. The engine never mutates
// payload values, so copying the top level is enough to isolate callers.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
