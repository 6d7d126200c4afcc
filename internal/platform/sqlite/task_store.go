package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/store"
)

// TaskStore implements the store.TaskStore interface using SQLite. JSON
// columns are TEXT manipulated with SQLite's json1 functions so attempt
// bookkeeping stays a single UPDATE, same as the postgres store.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		task.CreatedAt.Format(time.RFC3339Nano),
		task.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
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
	query := taskSelect + ` WHERE id = ?`

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

// SetStatus updates the record's status, leaving terminal records
// untouched.
func (s *TaskStore) SetStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	if !domain.IsValidTaskStatus(status) {
		return domain.ErrInvalidStatus
	}

	query := `
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339Nano), id)
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

// AppendHistory appends one entry to the record's audit trail.
func (s *TaskStore) AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	query := `
		UPDATE tasks
		SET history = json_insert(history, '$[#]', json(?)), updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, encoded, time.Now().UTC().Format(time.RFC3339Nano), id)
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
// and appends the attempt-start history entry in one UPDATE.
func (s *TaskStore) BeginAttempt(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE tasks
		SET status = 'running',
		    attempts = attempts + 1,
		    history = json_insert(history, '$[#]', json_object(
		        'timestamp', ?,
		        'status', 'running',
		        'notes', 'attempt ' || (attempts + 1) || ' started')),
		    updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')
		RETURNING attempts
	`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var attempts int
	err := s.db.QueryRowContext(ctx, query, now, now, id).Scan(&attempts)
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
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
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
		task      domain.TrackedTask
		runID     sql.NullString
		payload   []byte
		history   []byte
		createdAt string
		updatedAt string
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
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	task.RunID = runID.String

	var err error
	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

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

// historyOrEmpty keeps the history column a JSON array, never null.
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
