package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/platform/logger"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// Queue is a PostgreSQL-backed durable FIFO. Envelopes live in the
// queue_items table ordered by a bigserial position; multiple named queues
// (primary, dead-letter) share the table.
type Queue struct {
	db   store.DBTX
	name string
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue creates a named queue over the given database handle.
func NewQueue(db store.DBTX, name string) *Queue {
	return &Queue{
		db:   db,
		name: name,
	}
}

// Enqueue appends the task envelope to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, task domain.Task) error {
	log := logger.FromContext(ctx)

	envelope, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task envelope: %w", err)
	}

	query := `
		INSERT INTO queue_items (queue, envelope)
		VALUES ($1, $2)
	`

	if _, err := q.db.ExecContext(ctx, query, q.name, envelope); err != nil {
		log.Error("failed to enqueue task",
			"queue", q.name,
			"task_id", task.ID,
			"error", err)
		return fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return nil
}

// Dequeue pops and returns the head of the queue. The inner SELECT takes a
// row lock with SKIP LOCKED, so concurrent callers each claim a distinct
// envelope and an empty queue returns ok=false rather than blocking.
func (q *Queue) Dequeue(ctx context.Context) (domain.Task, bool, error) {
	log := logger.FromContext(ctx)

	query := `
		DELETE FROM queue_items
		WHERE position = (
			SELECT position
			FROM queue_items
			WHERE queue = $1
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING envelope
	`

	var envelope []byte
	err := q.db.QueryRowContext(ctx, query, q.name).Scan(&envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		log.Error("failed to dequeue task", "queue", q.name, "error", err)
		return domain.Task{}, false, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	var task domain.Task
	if err := json.Unmarshal(envelope, &task); err != nil {
		return domain.Task{}, false, fmt.Errorf("failed to decode task envelope: %w", err)
	}

	return task, true, nil
}

// Size returns the number of pending envelopes.
func (q *Queue) Size(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_items
		WHERE queue = $1
	`

	var count int
	if err := q.db.QueryRowContext(ctx, query, q.name).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return count, nil
}
