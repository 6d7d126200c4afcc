package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	t.Run("generates id when empty", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask("", "", RoleArchitect, "plan the system", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
	})

	t.Run("keeps caller-supplied id", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask("t1", "r1", RoleImplementer, "write code", map[string]any{"repo": "x"})
		require.NoError(t, err)
		assert.Equal(t, "t1", task.ID)
		assert.Equal(t, "r1", task.RunID)
		assert.Equal(t, RoleImplementer, task.Role)
	})

	t.Run("rejects empty role", func(t *testing.T) {
		t.Parallel()

		_, err := NewTask("t1", "", "", "desc", nil)
		assert.ErrorIs(t, err, ErrEmptyTaskRole)
	})
}

func TestNewTrackedTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask("t1", "", RoleReviewer, "review", nil)
	require.NoError(t, err)

	tracked, err := NewTrackedTask(task)
	require.NoError(t, err)

	assert.Equal(t, TaskStatusQueued, tracked.Status)
	assert.Equal(t, 0, tracked.Attempts)
	assert.Empty(t, tracked.History)
	assert.False(t, tracked.CreatedAt.IsZero())
	assert.False(t, tracked.Terminal())
}

func TestTrackedTask_Terminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusQueued, false},
		{TaskStatusRunning, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tc := range cases {
		tracked := &TrackedTask{Status: tc.status}
		assert.Equal(t, tc.terminal, tracked.Terminal(), "status %s", tc.status)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to TaskStatus }{
		{TaskStatusQueued, TaskStatusRunning},
		{TaskStatusRunning, TaskStatusCompleted},
		{TaskStatusRunning, TaskStatusFailed},
		{TaskStatusRunning, TaskStatusQueued}, // retry
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to TaskStatus }{
		{TaskStatusQueued, TaskStatusCompleted},
		{TaskStatusQueued, TaskStatusFailed},
		{TaskStatusCompleted, TaskStatusRunning},
		{TaskStatusCompleted, TaskStatusQueued},
		{TaskStatusFailed, TaskStatusRunning},
		{TaskStatusFailed, TaskStatusQueued},
		{TaskStatusCompleted, TaskStatusFailed},
		{TaskStatusFailed, TaskStatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestIsValidTaskStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []TaskStatus{TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed} {
		assert.True(t, IsValidTaskStatus(s))
	}
	assert.False(t, IsValidTaskStatus("pending"))
	assert.False(t, IsValidTaskStatus(""))
}
