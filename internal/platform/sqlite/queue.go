package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// Queue is a SQLite-backed durable FIFO. Envelopes live in the
// queue_items table ordered by rowid-backed position; named queues share
// the table.
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
	envelope, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task envelope: %w", err)
	}

	query := `
		INSERT INTO queue_items (queue, envelope)
		VALUES (?, ?)
	`

	if _, err := q.db.ExecContext(ctx, query, q.name, envelope); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return nil
}

// Dequeue pops and returns the head of the queue. SQLite serializes
// writers, so the DELETE of the head row is exclusive without explicit
// row locking.
func (q *Queue) Dequeue(ctx context.Context) (domain.Task, bool, error) {
	query := `
		DELETE FROM queue_items
		WHERE position = (
			SELECT position
			FROM queue_items
			WHERE queue = ?
			ORDER BY position
			LIMIT 1
		)
		RETURNING envelope
	`

	var envelope []byte
	err := q.db.QueryRowContext(ctx, query, q.name).Scan(&envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, false, nil
	}
	if err != nil {
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
		WHERE queue = ?
	`

	var count int
	if err := q.db.QueryRowContext(ctx, query, q.name).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", queue.ErrUnavailable, err)
	}

	return count, nil
}
