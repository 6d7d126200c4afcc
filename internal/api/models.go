package api

import (
	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/engine"
)

// SubmitTaskRequest describes one task in a submission. IDs are optional;
// omitted ids are generated server-side.
type SubmitTaskRequest struct {
	ID          string         `json:"id"`
	Role        string         `json:"role" validate:"required"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload"`
}

// SubmitRunRequest asks the host to create a run with the given member
// tasks and enqueue them.
type SubmitRunRequest struct {
	ID       string              `json:"id"`
	Payload  map[string]any      `json:"payload"`
	Metadata map[string]any      `json:"metadata"`
	Tasks    []SubmitTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

// SubmitRunResponse reports the created run and its task ids.
type SubmitRunResponse struct {
	RunID   string   `json:"run_id"`
	TaskIDs []string `json:"task_ids"`
}

// SubmitTaskResponse reports a single enqueued task.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

// TaskResponse is the external view of a tracked task record.
type TaskResponse struct {
	*domain.TrackedTask
}

// RunResponse is the external view of a run record.
type RunResponse struct {
	*domain.RunRecord
}

// MetricsResponse reports the worker's lifetime counters.
type MetricsResponse struct {
	Worker engine.Metrics `json:"worker"`
}
