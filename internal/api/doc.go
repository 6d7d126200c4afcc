// Package api implements the HTTP surface the host process exposes on top
// of the engine: submitting runs and tasks, inspecting task/run status,
// reading worker metrics, and triggering a scheduler cycle. The engine
// itself speaks no network protocol; everything here is glue over the
// queue/store contracts.
package api
