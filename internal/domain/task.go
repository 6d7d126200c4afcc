package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a tracked task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Common validation errors for Task and TrackedTask.
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskRole     = errors.New("task role cannot be empty")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Task is the immutable envelope describing one unit of work. It is what
// travels through the queue; the engine never inspects Payload.
type Task struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id,omitempty"`
	Role        Role           `json:"role"`
	Description string         `json:"description,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewTask creates a Task addressed to the given role. When id is empty a
// UUID is generated, matching the caller-supplied-or-generated contract.
// Returns an error if validation fails.
func NewTask(id string, runID string, role Role, description string, payload map[string]any) (Task, error) {
	if id == "" {
		id = uuid.NewString()
	}

	t := Task{
		ID:          id,
		RunID:       runID,
		Role:        role,
		Description: description,
		Payload:     payload,
	}

	if err := t.Validate(); err != nil {
		return Task{}, err
	}

	return t, nil
}

// Validate checks if the Task has valid data.
func (t Task) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}

	if t.Role == "" {
		return ErrEmptyTaskRole
	}

	return nil
}

// HistoryEntry records one status observation in a tracked task's audit
// trail. The history is append-only and never truncated.
type HistoryEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Status    TaskStatus `json:"status"`
	Notes     string     `json:"notes,omitempty"`
}

// TrackedTask is the mutable record the task store owns for one Task. The
// producer creates it once at enqueue time; after that only the worker
// mutates it, and the engine never deletes it.
type TrackedTask struct {
	Task

	Status    TaskStatus     `json:"status"`
	Attempts  int            `json:"attempts"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewTrackedTask creates the initial store record for a task: queued, zero
// attempts, empty history.
func NewTrackedTask(t Task) (*TrackedTask, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &TrackedTask{
		Task:      t,
		Status:    TaskStatusQueued,
		Attempts:  0,
		History:   nil,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Terminal reports whether the task has reached a final state.
func (t *TrackedTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a tracked task may move from one status to
// another. Statuses only move forward: queued→running, running→completed,
// running→failed, and running→queued for a retry. Terminal states accept no
// further transitions.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusQueued
	default:
		return false
	}
}
