// Package queue defines the durable FIFO contract the engine enqueues task
// envelopes onto. Implementations live under internal/platform; a second,
// independently named instance of the same implementation serves as the
// dead-letter destination.
package queue

import (
	"context"
	"errors"

	"github.com/crewplane/crewplane/internal/domain"
)

// Common errors returned by queue implementations.
var (
	// ErrUnavailable wraps transient infrastructure failures (connection
	// refused, timeouts). The engine never masks or retries these; callers
	// decide whether to retry the operation.
	ErrUnavailable = errors.New("queue unavailable")

	// ErrClosed is returned when an operation is attempted on a queue that
	// has been shut down.
	ErrClosed = errors.New("queue is closed")
)

// Queue is a named durable FIFO of task envelopes.
//
// Dequeue is exclusive: once an envelope has been returned to one caller,
// no other caller can receive it. That contract is what lets multiple
// worker processes share a single queue safely.
type Queue interface {
	// Enqueue appends the task envelope to the tail of the queue.
	Enqueue(ctx context.Context, task domain.Task) error

	// Dequeue pops the head of the queue. ok is false when the queue is
	// empty; an error indicates an infrastructure failure, not emptiness.
	Dequeue(ctx context.Context) (task domain.Task, ok bool, err error)

	// Size returns the number of pending envelopes.
	Size(ctx context.Context) (int, error)
}
