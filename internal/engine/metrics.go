package engine

import "sync/atomic"

// Metrics is a point-in-time snapshot of a worker's counters. Counters are
// monotonically increasing for the worker's lifetime and are owned by the
// worker instance, so multiple independent workers can coexist in one
// process.
type Metrics struct {
	Completed    uint64 `json:"completed"`
	Failed       uint64 `json:"failed"`
	Retries      uint64 `json:"retries"`
	DeadLettered uint64 `json:"dead_lettered"`
}

// counters holds the live atomic counters behind a Metrics snapshot.
type counters struct {
	completed    atomic.Uint64
	failed       atomic.Uint64
	retries      atomic.Uint64
	deadLettered atomic.Uint64
}

// snapshot returns a consistent-enough copy of the counters. Each counter
// is read atomically; cross-counter skew is acceptable for observability.
func (c *counters) snapshot() Metrics {
	return Metrics{
		Completed:    c.completed.Load(),
		Failed:       c.failed.Load(),
		Retries:      c.retries.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}
