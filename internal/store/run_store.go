package store

import (
	"context"

	"github.com/crewplane/crewplane/internal/domain"
)

// RunStore defines the persistence contract for run records. The worker
// calls Get plus SetStatus after every member task lands, recomputing the
// aggregate status incrementally rather than re-deriving it on reads.
type RunStore interface {
	// Add persists a new run record. Returns ErrDuplicate if a record with
	// the same id already exists.
	Add(ctx context.Context, run *domain.RunRecord) error

	// Get returns the run for the given id, or ErrRunNotFound.
	Get(ctx context.Context, id string) (*domain.RunRecord, error)

	// SetStatus updates the run's aggregate status. Returns ErrRunNotFound
	// if the run does not exist.
	SetStatus(ctx context.Context, id string, status domain.RunStatus) error
}
