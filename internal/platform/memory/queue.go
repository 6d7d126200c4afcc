package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/queue"
)

// Queue is a mutex-guarded in-process FIFO of task envelopes. Dequeue is
// exclusive by construction: the head is removed under the lock before it
// is returned, so two concurrent callers can never receive the same
// envelope.
type Queue struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	items  []domain.Task
	closed bool
}

// Statically verify the queue contract.
var _ queue.Queue = (*Queue)(nil)

// NewQueue creates a named in-process queue.
func NewQueue(name string, logger *slog.Logger) *Queue {
	return &Queue{
		name:   name,
		logger: logger,
	}
}

// Enqueue appends the task envelope to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, task domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}

	q.items = append(q.items, task)
	q.logger.Debug("task enqueued",
		"queue", q.name,
		"task_id", task.ID,
		"role", task.Role,
		"queue_len", len(q.items))
	return nil
}

// Dequeue pops and returns the head of the queue. ok is false when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (domain.Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.Task{}, false, queue.ErrClosed
	}

	if len(q.items) == 0 {
		return domain.Task{}, false, nil
	}

	task := q.items[0]
	q.items = q.items[1:]
	return task, true, nil
}

// Size returns the number of pending envelopes.
func (q *Queue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, queue.ErrClosed
	}

	return len(q.items), nil
}

// Close marks the queue closed; subsequent operations return ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.items = nil
		q.logger.Info("queue closed", "queue", q.name)
	}
}
