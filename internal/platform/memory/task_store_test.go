package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/store"
)

func newTracked(t *testing.T, id string) *domain.TrackedTask {
	t.Helper()

	task, err := domain.NewTask(id, "", domain.RoleImplementer, "work", map[string]any{"k": "v"})
	require.NoError(t, err)
	tracked, err := domain.NewTrackedTask(task)
	require.NoError(t, err)
	return tracked
}

func TestTaskStore_AddAndGet(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, newTracked(t, "t1")))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := s.Add(ctx, newTracked(t, "t1"))
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("returned record is isolated", func(t *testing.T) {
		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		got.Status = domain.TaskStatusFailed
		got.Payload["k"] = "mutated"

		fresh, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusQueued, fresh.Status)
		assert.Equal(t, "v", fresh.Payload["k"])
	})
}

func TestTaskStore_SetStatus(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, newTracked(t, "t1")))

	t.Run("forward transitions", func(t *testing.T) {
		require.NoError(t, s.SetStatus(ctx, "t1", domain.TaskStatusRunning))
		require.NoError(t, s.SetStatus(ctx, "t1", domain.TaskStatusCompleted))
	})

	t.Run("terminal status is frozen", func(t *testing.T) {
		err := s.SetStatus(ctx, "t1", domain.TaskStatusRunning)
		assert.ErrorIs(t, err, store.ErrTaskTerminal)
	})

	t.Run("invalid transition", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, newTracked(t, "t2")))
		err := s.SetStatus(ctx, "t2", domain.TaskStatusCompleted)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("missing id", func(t *testing.T) {
		err := s.SetStatus(ctx, "nope", domain.TaskStatusRunning)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestTaskStore_BeginAttempt(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, newTracked(t, "t1")))

	attempts, err := s.BeginAttempt(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.Len(t, got.History, 1)
	assert.Equal(t, domain.TaskStatusRunning, got.History[0].Status)
	assert.Contains(t, got.History[0].Notes, "attempt 1")

	t.Run("terminal record refused", func(t *testing.T) {
		require.NoError(t, s.SetStatus(ctx, "t1", domain.TaskStatusCompleted))
		_, err := s.BeginAttempt(ctx, "t1")
		assert.ErrorIs(t, err, store.ErrTaskTerminal)
	})
}

func TestTaskStore_AppendHistory(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, newTracked(t, "t1")))

	entry := domain.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Status:    domain.TaskStatusQueued,
		Notes:     "requeued",
	}
	require.NoError(t, s.AppendHistory(ctx, "t1", entry))
	require.NoError(t, s.AppendHistory(ctx, "t1", entry))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
}

func TestTaskStore_All(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()

	first := newTracked(t, "t1")
	second := newTracked(t, "t2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, s.Add(ctx, first))
	require.NoError(t, s.Add(ctx, second))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "t2", all[1].ID)
}
