package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewplane/crewplane/internal/agent"
	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/platform/logger"
	"github.com/crewplane/crewplane/internal/platform/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testRig bundles a worker with its in-process infrastructure.
type testRig struct {
	worker     *Worker
	queue      *memory.Queue
	deadLetter *memory.Queue
	tasks      *memory.TaskStore
	runs       *memory.RunStore
	registry   *agent.Registry
}

func newTestRig(t *testing.T, cfg WorkerConfig) *testRig {
	t.Helper()

	log := testLogger()
	rig := &testRig{
		queue:      memory.NewQueue("tasks", log),
		deadLetter: memory.NewQueue("tasks-dead-letter", log),
		tasks:      memory.NewTaskStore(),
		runs:       memory.NewRunStore(),
		registry:   agent.NewRegistry(),
	}

	rig.worker = NewWorker(rig.queue, rig.tasks, rig.registry, cfg, log)
	rig.worker.SetDeadLetterQueue(rig.deadLetter)
	rig.worker.SetRunStore(rig.runs)
	t.Cleanup(rig.worker.Stop)

	return rig
}

// submit persists a tracked record and enqueues the envelope, the same
// ordering any producer uses.
func (r *testRig) submit(t *testing.T, task domain.Task) {
	t.Helper()

	ctx := context.Background()
	tracked, err := domain.NewTrackedTask(task)
	require.NoError(t, err)
	require.NoError(t, r.tasks.Add(ctx, tracked))
	require.NoError(t, r.queue.Enqueue(ctx, task))
}

func mustTask(t *testing.T, id string, runID string, role domain.Role) domain.Task {
	t.Helper()

	task, err := domain.NewTask(id, runID, role, "test task", nil)
	require.NoError(t, err)
	return task
}

func completingAgent(output map[string]any) agent.Agent {
	return agent.Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		return domain.AgentResult{
			TaskID: task.ID,
			Status: domain.ResultStatusCompleted,
			Notes:  "ok",
			Output: output,
		}, nil
	})
}

func failingAgent(err error) agent.Agent {
	return agent.Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		return domain.AgentResult{}, err
	})
}

func TestWorker_SuccessfulTask(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.Register(domain.RoleImplementer, completingAgent(map[string]any{"msg": "ok"}))

	rig.submit(t, mustTask(t, "t2", "", domain.RoleImplementer))

	require.NoError(t, rig.worker.Tick(context.Background()))

	got, err := rig.tasks.Get(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)

	metrics := rig.worker.Metrics()
	assert.Equal(t, uint64(1), metrics.Completed)
	assert.Equal(t, uint64(0), metrics.Failed)
	assert.Equal(t, uint64(0), metrics.Retries)
}

func TestWorker_RetryThenDeadLetter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 2, Backoff: 10 * time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.Register(domain.RoleArchitect, failingAgent(errors.New("always broken")))

	rig.submit(t, mustTask(t, "t1", "", domain.RoleArchitect))

	// Attempt 1 fails and schedules a re-enqueue after the backoff.
	require.NoError(t, rig.worker.Tick(ctx))
	assert.Equal(t, uint64(1), rig.worker.Metrics().Retries)

	require.Eventually(t, func() bool {
		size, err := rig.queue.Size(ctx)
		return err == nil && size == 1
	}, time.Second, 2*time.Millisecond, "retried task should return to the queue after the backoff")

	// Attempt 2 exhausts the budget.
	require.NoError(t, rig.worker.Tick(ctx))

	got, err := rig.tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotEmpty(t, got.History)
	assert.Contains(t, got.History[len(got.History)-1].Notes, "retry budget exhausted")

	dead, ok, err := rig.deadLetter.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", dead.ID)

	metrics := rig.worker.Metrics()
	assert.Equal(t, uint64(1), metrics.DeadLettered)
	assert.Equal(t, uint64(1), metrics.Failed)
	assert.Equal(t, uint64(1), metrics.Retries)

	// A further tick on the now-empty queue changes nothing.
	require.NoError(t, rig.worker.Tick(ctx))
	assert.Equal(t, metrics, rig.worker.Metrics())
}

func TestWorker_IdempotentTerminalState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.SetFallback(completingAgent(nil))

	task := mustTask(t, "t1", "", domain.RoleReviewer)
	rig.submit(t, task)
	require.NoError(t, rig.worker.Tick(ctx))

	got, err := rig.tasks.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, got.Status)

	// A duplicate envelope for the settled task is dropped without
	// touching the record.
	require.NoError(t, rig.queue.Enqueue(ctx, task))
	require.NoError(t, rig.worker.Tick(ctx))

	after, err := rig.tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, after.Status)
	assert.Equal(t, got.Attempts, after.Attempts)
	assert.Equal(t, uint64(1), rig.worker.Metrics().Completed)
}

func TestWorker_FIFOForFirstAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond, PollInterval: time.Millisecond})

	var order []string
	rig.registry.SetFallback(agent.Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		order = append(order, task.ID)
		return domain.AgentResult{TaskID: task.ID, Status: domain.ResultStatusCompleted}, nil
	}))

	for _, id := range []string{"a", "b", "c"} {
		rig.submit(t, mustTask(t, id, "", domain.RoleImplementer))
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, rig.worker.Tick(ctx))
	}

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, uint64(3), rig.worker.Metrics().Completed)
}

func TestWorker_RunAggregation(t *testing.T) {
	t.Parallel()

	t.Run("run completes when all members complete", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: 10 * time.Millisecond, PollInterval: time.Millisecond})
		rig.registry.SetFallback(completingAgent(nil))

		run, err := domain.NewRunRecord("r1", domain.RunTypeManual, []string{"t3", "t4"}, nil, nil)
		require.NoError(t, err)
		require.NoError(t, rig.runs.Add(ctx, run))
		rig.submit(t, mustTask(t, "t3", "r1", domain.RoleArchitect))
		rig.submit(t, mustTask(t, "t4", "r1", domain.RoleImplementer))

		require.NoError(t, rig.worker.Tick(ctx))
		mid, err := rig.runs.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusRunning, mid.Status)

		require.NoError(t, rig.worker.Tick(ctx))
		final, err := rig.runs.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, final.Status)
	})

	t.Run("run fails when any member fails terminally", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		rig := newTestRig(t, WorkerConfig{MaxRetries: 1, Backoff: time.Millisecond, PollInterval: time.Millisecond})
		rig.registry.Register(domain.RoleArchitect, completingAgent(nil))
		rig.registry.Register(domain.RoleTester, failingAgent(errors.New("broken")))

		run, err := domain.NewRunRecord("r2", domain.RunTypeManual, []string{"ok", "bad"}, nil, nil)
		require.NoError(t, err)
		require.NoError(t, rig.runs.Add(ctx, run))
		rig.submit(t, mustTask(t, "ok", "r2", domain.RoleArchitect))
		rig.submit(t, mustTask(t, "bad", "r2", domain.RoleTester))

		require.NoError(t, rig.worker.Tick(ctx))
		require.NoError(t, rig.worker.Tick(ctx))

		final, err := rig.runs.Get(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, final.Status)
	})
}

func TestWorker_FailedResultTreatedLikeError(t *testing.T) {
	t.Parallel()

	// An agent that returns status "failed" without an error goes through
	// the same retry path as one that raises.
	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 1, Backoff: time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.Register(domain.RoleCatcher, agent.Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		return domain.AgentResult{
			TaskID: task.ID,
			Status: domain.ResultStatusFailed,
			Notes:  "artifact checksum mismatch",
		}, nil
	}))

	rig.submit(t, mustTask(t, "t1", "", domain.RoleCatcher))
	require.NoError(t, rig.worker.Tick(ctx))

	got, err := rig.tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.History[len(got.History)-1].Notes, "artifact checksum mismatch")
	assert.Equal(t, uint64(1), rig.worker.Metrics().Failed)
}

func TestWorker_RoutingFailure(t *testing.T) {
	t.Parallel()

	// No agent and no fallback: routing failure follows the capability
	// failure path into the dead-letter queue.
	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 1, Backoff: time.Millisecond, PollInterval: time.Millisecond})

	rig.submit(t, mustTask(t, "t1", "", domain.RoleScout))
	require.NoError(t, rig.worker.Tick(ctx))

	got, err := rig.tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.History[len(got.History)-1].Notes, "no executor registered")

	_, ok, err := rig.deadLetter.Dequeue(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWorker_ExternallyEnqueuedEnvelope(t *testing.T) {
	t.Parallel()

	// An envelope with no prior store record gets one created at attempt
	// start instead of being lost.
	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.SetFallback(completingAgent(nil))

	require.NoError(t, rig.queue.Enqueue(ctx, mustTask(t, "orphan", "", domain.RoleMaintainer)))
	require.NoError(t, rig.worker.Tick(ctx))

	got, err := rig.tasks.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
}

func TestWorker_EmptyQueueTickIsNoOp(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: time.Millisecond, PollInterval: time.Millisecond})

	require.NoError(t, rig.worker.Tick(context.Background()))
	assert.Equal(t, Metrics{}, rig.worker.Metrics())
}

func TestWorker_StopCancelsPendingRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rig := newTestRig(t, WorkerConfig{MaxRetries: 2, Backoff: 50 * time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.SetFallback(failingAgent(errors.New("broken")))

	rig.submit(t, mustTask(t, "t1", "", domain.RoleTester))
	require.NoError(t, rig.worker.Tick(ctx))

	rig.worker.Stop()
	time.Sleep(100 * time.Millisecond)

	size, err := rig.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size, "cancelled retry must not re-enqueue")
}

func TestWorker_TickScopedLogger(t *testing.T) {
	t.Parallel()

	// The tick's task-scoped logger travels in the context, so stores and
	// agents resolve it via logger.FromContext instead of the process
	// default.
	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: time.Millisecond, PollInterval: time.Millisecond})

	var got *slog.Logger
	rig.registry.SetFallback(agent.Func(func(ctx context.Context, task domain.Task) (domain.AgentResult, error) {
		got = logger.FromContext(ctx)
		return domain.AgentResult{TaskID: task.ID, Status: domain.ResultStatusCompleted}, nil
	}))

	rig.submit(t, mustTask(t, "t1", "", domain.RoleImplementer))
	require.NoError(t, rig.worker.Tick(context.Background()))

	require.NotNil(t, got)
	assert.NotSame(t, slog.Default(), got)
}

func TestWorker_RunLoop(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, WorkerConfig{MaxRetries: 3, Backoff: time.Millisecond, PollInterval: time.Millisecond})
	rig.registry.SetFallback(completingAgent(nil))

	rig.submit(t, mustTask(t, "t1", "", domain.RoleImplementer))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rig.worker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return rig.worker.Metrics().Completed == 1
	}, time.Second, 2*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
