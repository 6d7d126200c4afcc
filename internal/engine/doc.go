// Package engine contains the orchestration core: the worker that drains
// the task queue, dispatches to registered agents, and applies the
// retry/dead-letter policy, and the scheduler that periodically injects
// new runs through the same queue/store path.
package engine
