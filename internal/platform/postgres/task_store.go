package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/platform/logger"
	"github.com/crewplane/crewplane/internal/store"
)

// TaskStore implements the store.TaskStore interface using PostgreSQL.
// Attempt bookkeeping happens in single UPDATE statements, so concurrent
// workers cannot corrupt the attempts counter or the history.
type TaskStore struct {
	db store.DBTX
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a new TaskStore over the given database handle.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{
		db: db,
	}
}

// Add persists a new tracked task.
func (s *TaskStore) Add(ctx context.Context, task *domain.TrackedTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	history, err := json.Marshal(historyOrEmpty(task.History))
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	query := `
		INSERT INTO tasks (id, run_id, role, description, payload, status, attempts, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		nullString(task.RunID),
		task.Role,
		task.Description,
		payload,
		task.Status,
		task.Attempts,
		history,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task", "task_id", task.ID, "error", err)
		return fmt.Errorf("failed to save task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}

	return nil
}

// Get returns the record for the given id, or store.ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.TrackedTask, error) {
	query := taskSelect + ` WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	return task, nil
}

// SetStatus updates the record's status. Terminal records are left
// untouched and reported via store.ErrTaskTerminal.
func (s *TaskStore) SetStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	if !domain.IsValidTaskStatus(status) {
		return domain.ErrInvalidStatus
	}

	query := `
		UPDATE tasks
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.missingOrTerminal(ctx, id)
	}

	return nil
}

// AppendHistory appends one entry to the record's audit trail with a
// single jsonb concatenation.
func (s *TaskStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	encoded, err := json.Marshal([]domain.HistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	query := `
		UPDATE tasks
		SET history = history || $2::jsonb, updated_at = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, encoded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// BeginAttempt marks the record running, increments its attempt counter,
// and appends the attempt-start history entry, all in one UPDATE.
func (s *TaskStore) BeginAttempt(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE tasks
		SET status = 'running',
		    attempts = attempts + 1,
		    history = history || jsonb_build_array(jsonb_build_object(
		        'timestamp', $2::text,
		        'status', 'running',
		        'notes', 'attempt ' || (attempts + 1) || ' started')),
		    updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
		RETURNING attempts
	`

	now := time.Now().UTC()
	var attempts int
	err := s.db.QueryRowContext(ctx, query, id, now.Format(time.RFC3339Nano), now).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.missingOrTerminal(ctx, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to begin attempt: %w", err)
	}

	return attempts, nil
}

// All returns every record, ordered by creation time.
func (s *TaskStore) All(ctx context.Context) ([]*domain.TrackedTask, error) {
	query := taskSelect + ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.TrackedTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// missingOrTerminal distinguishes a zero-row update: either the record
// does not exist or it has already settled.
func (s *TaskStore) missingOrTerminal(ctx context.Context, id string) error {
	var status domain.TaskStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load task status: %w", err)
	}
	return fmt.Errorf("%w: task %s is %s", store.ErrTaskTerminal, id, status)
}

const taskSelect = `
	SELECT id, run_id, role, description, payload, status, attempts, history, created_at, updated_at
	FROM tasks`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask decodes one tasks row into a domain record.
func scanTask(row rowScanner) (*domain.TrackedTask, error) {
	var (
		task    domain.TrackedTask
		runID   sql.NullString
		payload []byte
		history []byte
	)

	if err := row.Scan(
		&task.ID,
		&runID,
		&task.Role,
		&task.Description,
		&payload,
		&task.Status,
		&task.Attempts,
		&history,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.RunID = runID.String

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &task.History); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
	}

	return &task, nil
}

// historyOrEmpty keeps the history column a jsonb array, never null.
func historyOrEmpty(history []domain.HistoryEntry) []domain.HistoryEntry {
	if history == nil {
		return []domain.HistoryEntry{}
	}
	return history
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
