package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the aggregate state of a run.
type RunStatus string

// Possible run status values. They mirror the task statuses because a run's
// status is a pure function of its member tasks' statuses.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run type tags describing the producer that created a run.
const (
	RunTypeManual   = "manual"
	RunTypeSchedule = "schedule"
)

// Common validation errors for RunRecord.
var (
	ErrEmptyRunID       = errors.New("run ID cannot be empty")
	ErrRunWithoutTasks  = errors.New("run must reference at least one task")
	ErrInvalidRunStatus = errors.New("invalid run status")
)

// RunRecord groups a cohort of tasks under one id. TaskIDs is fixed at
// creation; only the worker mutates Status afterwards.
type RunRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    RunStatus      `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
	TaskIDs   []string       `json:"task_ids"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewRunRecord creates a queued run over the given task ids. When id is
// empty a UUID is generated. Returns an error if validation fails.
func NewRunRecord(id string, runType string, taskIDs []string, payload, metadata map[string]any) (*RunRecord, error) {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	run := &RunRecord{
		ID:        id,
		Type:      runType,
		Status:    RunStatusQueued,
		Payload:   payload,
		TaskIDs:   taskIDs,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := run.Validate(); err != nil {
		return nil, err
	}

	return run, nil
}

// Validate checks if the RunRecord has valid data.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptyRunID
	}

	if len(r.TaskIDs) == 0 {
		return ErrRunWithoutTasks
	}

	if !IsValidRunStatus(r.Status) {
		return ErrInvalidRunStatus
	}

	return nil
}

// IsValidRunStatus checks if the given status is a valid RunStatus.
func IsValidRunStatus(status RunStatus) bool {
	switch status {
	case RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// AggregateRunStatus derives a run's status from its member task statuses:
// completed iff every task completed, failed iff any task terminally failed,
// running if any task has made progress, queued otherwise. The order of
// member completion does not matter, only the multiset of statuses.
func AggregateRunStatus(statuses []TaskStatus) RunStatus {
	if len(statuses) == 0 {
		return RunStatusQueued
	}

	completed := 0
	started := false
	for _, s := range statuses {
		switch s {
		case TaskStatusFailed:
			return RunStatusFailed
		case TaskStatusCompleted:
			completed++
			started = true
		case TaskStatusRunning:
			started = true
		}
	}

	if completed == len(statuses) {
		return RunStatusCompleted
	}
	if started {
		return RunStatusRunning
	}
	return RunStatusQueued
}
