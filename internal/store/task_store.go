package store

import (
	"context"

	"github.com/crewplane/crewplane/internal/domain"
)

// TaskStore defines the persistence contract for tracked task records.
//
// All mutations are keyed by task id. Implementations must make
// BeginAttempt atomic with respect to concurrent callers (a single UPDATE
// in SQL-backed stores) so two workers can never corrupt the attempts
// counter or the history.
type TaskStore interface {
	// Add persists a new tracked task. Returns ErrDuplicate if a record
	// with the same id already exists.
	Add(ctx context.Context, task *domain.TrackedTask) error

	// Get returns the record for the given id, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*domain.TrackedTask, error)

	// SetStatus updates the record's status. Returns ErrTaskNotFound if the
	// record does not exist and ErrTaskTerminal if it has already reached a
	// terminal state.
	SetStatus(ctx context.Context, id string, status domain.TaskStatus) error

	// AppendHistory appends one entry to the record's audit trail. The
	// history is append-only; entries are never rewritten or truncated.
	AppendHistory(ctx context.Context, id string, entry domain.HistoryEntry) error

	// BeginAttempt atomically marks the record running, increments its
	// attempt counter, and appends a history entry. It returns the new
	// attempt count. Returns ErrTaskTerminal if the record is already
	// completed or failed.
	BeginAttempt(ctx context.Context, id string) (int, error)

	// All returns every record in the store. Diagnostics and tests only;
	// not used on the hot path.
	All(ctx context.Context) ([]*domain.TrackedTask, error)
}
