package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/crewplane/crewplane/internal/domain"
)

// ErrNoAgent is returned by Invoke when neither a role-specific agent nor
// a fallback is registered for a task's role. The worker treats it like
// any capability failure (retry, then dead-letter).
var ErrNoAgent = fmt.Errorf("no executor registered for role")

// Registry routes tasks to capability implementations by role, with an
// optional fallback for roles that have no specific registration. The set
// of dispatchable roles is whatever has been registered; registration
// normally happens once at host startup.
type Registry struct {
	mu       sync.RWMutex
	agents   map[domain.Role]Agent
	fallback Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[domain.Role]Agent),
	}
}

// Register binds an agent to a role, replacing any previous binding.
func (r *Registry) Register(role domain.Role, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[role] = a
}

// SetFallback sets the agent used when no role-specific agent exists.
func (r *Registry) SetFallback(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = a
}

// Roles returns the roles with a specific registration.
func (r *Registry) Roles() []domain.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]domain.Role, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	return roles
}

// Resolve returns the agent for the given role, falling back when no
// specific agent is registered. Returns ErrNoAgent when neither exists.
func (r *Registry) Resolve(role domain.Role) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.agents[role]; ok {
		return a, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w %q", ErrNoAgent, role)
}

// Invoke resolves the agent for the task's role and executes it. Routing
// failures and execution failures both surface as errors; the caller does
// not need to distinguish them.
func (r *Registry) Invoke(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
	a, err := r.Resolve(task.Role)
	if err != nil {
		return domain.AgentResult{}, err
	}
	return a.Execute(ctx, task)
}
