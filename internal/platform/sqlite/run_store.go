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

// RunStore implements the store.RunStore interface using SQLite.
type RunStore struct {
	db store.DBTX
}

var _ store.RunStore = (*RunStore)(nil)

// NewRunStore creates a new RunStore over the given database handle.
func NewRunStore(db store.DBTX) *RunStore {
	return &RunStore{
		db: db,
	}
}

// Add persists a new run record.
func (s *RunStore) Add(ctx context.Context, run *domain.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}

	payload, err := json.Marshal(run.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	taskIDs, err := json.Marshal(run.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode task ids: %w", err)
	}
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO runs (id, type, status, payload, task_ids, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Type,
		run.Status,
		payload,
		taskIDs,
		metadata,
		run.CreatedAt.Format(time.RFC3339Nano),
		run.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", store.ErrDuplicate, run.ID)
	}

	return nil
}

// Get returns the run for the given id, or store.ErrRunNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	query := `
		SELECT id, type, status, payload, task_ids, metadata, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	var (
		run       domain.RunRecord
		payload   []byte
		taskIDs   []byte
		metadata  []byte
		createdAt string
		updatedAt string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Type,
		&run.Status,
		&payload,
		&taskIDs,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &run.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	if err := json.Unmarshal(taskIDs, &run.TaskIDs); err != nil {
		return nil, fmt.Errorf("failed to decode task ids: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &run, nil
}

// SetStatus updates the run's aggregate status.
func (s *RunStore) SetStatus(ctx context.Context, id string, status domain.RunStatus) error {
	if !domain.IsValidRunStatus(status) {
		return domain.ErrInvalidRunStatus
	}

	query := `
		UPDATE runs
		SET status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrRunNotFound
	}

	return nil
}
