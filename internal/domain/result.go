package domain

// ResultStatus is the outcome an agent reports for one task execution.
type ResultStatus string

// Possible result status values.
const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

// AgentResult is what a capability returns from executing a task. Output is
// opaque to the engine; LLM carries optional model metadata (token counts,
// model name) for capabilities that call one.
type AgentResult struct {
	TaskID string         `json:"task_id"`
	Status ResultStatus   `json:"status"`
	Notes  string         `json:"notes,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	LLM    map[string]any `json:"llm,omitempty"`
}

// Failed reports whether the result describes a failed execution.
func (r AgentResult) Failed() bool {
	return r.Status == ResultStatusFailed
}
