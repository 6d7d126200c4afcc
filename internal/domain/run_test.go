package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunRecord(t *testing.T) {
	t.Parallel()

	t.Run("valid run", func(t *testing.T) {
		t.Parallel()

		run, err := NewRunRecord("r1", RunTypeManual, []string{"t1", "t2"}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "r1", run.ID)
		assert.Equal(t, RunStatusQueued, run.Status)
		assert.Equal(t, []string{"t1", "t2"}, run.TaskIDs)
	})

	t.Run("generates id when empty", func(t *testing.T) {
		t.Parallel()

		run, err := NewRunRecord("", RunTypeSchedule, []string{"t1"}, nil, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
	})

	t.Run("rejects run without tasks", func(t *testing.T) {
		t.Parallel()

		_, err := NewRunRecord("r1", RunTypeManual, nil, nil, nil)
		assert.ErrorIs(t, err, ErrRunWithoutTasks)
	})
}

func TestAggregateRunStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		statuses []TaskStatus
		want     RunStatus
	}{
		{"all queued", []TaskStatus{TaskStatusQueued, TaskStatusQueued}, RunStatusQueued},
		{"one running", []TaskStatus{TaskStatusRunning, TaskStatusQueued}, RunStatusRunning},
		{"partial completion", []TaskStatus{TaskStatusCompleted, TaskStatusQueued}, RunStatusRunning},
		{"all completed", []TaskStatus{TaskStatusCompleted, TaskStatusCompleted}, RunStatusCompleted},
		{"failure dominates", []TaskStatus{TaskStatusCompleted, TaskStatusFailed}, RunStatusFailed},
		{"failure dominates running", []TaskStatus{TaskStatusRunning, TaskStatusFailed}, RunStatusFailed},
		{"single completed", []TaskStatus{TaskStatusCompleted}, RunStatusCompleted},
		{"empty", nil, RunStatusQueued},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, AggregateRunStatus(tc.statuses))
		})
	}
}

func TestAggregateRunStatus_OrderIndependent(t *testing.T) {
	t.Parallel()

	// The aggregate only depends on the multiset of statuses, not on which
	// sibling finished last.
	a := AggregateRunStatus([]TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusQueued})
	b := AggregateRunStatus([]TaskStatus{TaskStatusQueued, TaskStatusFailed, TaskStatusCompleted})
	assert.Equal(t, a, b)
	assert.Equal(t, RunStatusFailed, a)
}
