// Package agent defines the capability contract the engine dispatches
// tasks to, and the registry that maps roles to capability
// implementations. Concrete capabilities (planners, code generators,
// reviewers, ingestors) live outside this repository; the engine only
// depends on the Execute signature.
package agent

import (
	"context"

	"github.com/crewplane/crewplane/internal/domain"
)

// Agent is a capability implementation registered under one role. Execute
// may report failure either by returning a result with status failed or by
// returning an error; the worker treats both uniformly. The engine imposes
// no timeout: a capability that needs one must honor ctx or bound itself.
type Agent interface {
	Execute(ctx context.Context, task domain.Task) (domain.AgentResult, error)
}

// Func adapts an ordinary function to the Agent interface, the same way
// http.HandlerFunc adapts handlers. Hosts use it to register closures
// without declaring a type per capability.
type Func func(ctx context.Context, task domain.Task) (domain.AgentResult, error)

// Execute calls the underlying function.
func (f Func) Execute(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
	return f(ctx, task)
}

// Echo returns a stub agent that completes every task and echoes its
// description back in the result notes. Used as the dev-mode fallback so a
// freshly wired host processes work end to end before any real capability
// is registered.
func Echo() Agent {
	return Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		return domain.AgentResult{
			TaskID: task.ID,
			Status: domain.ResultStatusCompleted,
			Notes:  "echo: " + task.Description,
			Output: map[string]any{"role": task.Role.String()},
		}, nil
	})
}
