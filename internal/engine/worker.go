package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crewplane/crewplane/internal/agent"
	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/platform/logger"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	// MaxRetries bounds the number of execution attempts per task. Once a
	// task's attempt count reaches this bound its failure is terminal.
	MaxRetries int

	// Backoff is the fixed delay between a failed attempt and the
	// re-enqueue that starts the next one. There is no jitter and no
	// exponential growth; deployments needing either compose it by running
	// workers with different backoff values.
	Backoff time.Duration

	// PollInterval is the cadence of the Run loop between ticks.
	PollInterval time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxRetries:   3,
		Backoff:      5 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// Worker drains the task queue one envelope per tick: dequeue, mark
// running, route to the agent registry, then apply the retry/dead-letter
// policy to the outcome. A tick is one sequential pass with no internal
// concurrency; parallelism comes from running multiple workers against the
// same queue, which the queue's exclusive dequeue makes safe.
type Worker struct {
	queue      queue.Queue
	tasks      store.TaskStore
	registry   *agent.Registry
	config     WorkerConfig
	logger     *slog.Logger
	counters   counters
	deadLetter queue.Queue    // optional
	runs       store.RunStore // optional

	mu      sync.Mutex
	timers  map[string]*time.Timer // pending backoff re-enqueues by task id
	stopped bool
}

// NewWorker creates a worker over the given queue, task store, and agent
// registry. The dead-letter queue and run store are optional; set them
// with SetDeadLetterQueue and SetRunStore before starting the worker.
func NewWorker(q queue.Queue, tasks store.TaskStore, registry *agent.Registry, config WorkerConfig, logger *slog.Logger) *Worker {
	if config.MaxRetries < 1 {
		logger.Warn("invalid max retries specified, using default",
			"specified", config.MaxRetries,
			"default", DefaultWorkerConfig().MaxRetries)
		config.MaxRetries = DefaultWorkerConfig().MaxRetries
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWorkerConfig().PollInterval
	}

	return &Worker{
		queue:    q,
		tasks:    tasks,
		registry: registry,
		config:   config,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// SetDeadLetterQueue sets the destination for tasks that exhaust their
// retry budget. The worker only ever writes to it. Without one, terminal
// failures are recorded in the store but the envelope is dropped.
func (w *Worker) SetDeadLetterQueue(q queue.Queue) {
	w.deadLetter = q
}

// SetRunStore enables run aggregate bookkeeping for tasks that carry a run
// id. Without one, run bookkeeping is skipped entirely.
func (w *Worker) SetRunStore(runs store.RunStore) {
	w.runs = runs
}

// Metrics returns a snapshot of the worker's lifetime counters.
func (w *Worker) Metrics() Metrics {
	return w.counters.snapshot()
}

// Run drives Tick at the configured poll interval until ctx is cancelled.
// Tick errors are infrastructure failures; they are logged and the loop
// continues, leaving retry decisions to the operator.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"max_retries", w.config.MaxRetries,
		"backoff", w.config.Backoff,
		"poll_interval", w.config.PollInterval)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Stop cancels all pending backoff re-enqueues. It does not interrupt an
// in-flight tick; callers stop the Run loop by cancelling its context and
// then call Stop for a deterministic shutdown.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
}

// Tick processes at most one envelope: dequeue, dispatch, settle. An empty
// queue makes the tick a no-op. The returned error is always an
// infrastructure failure (queue or store); capability failures are settled
// by the retry policy and never propagate.
func (w *Worker) Tick(ctx context.Context) error {
	task, ok, err := w.queue.Dequeue(ctx)
	if err != nil {
		return fmt.Errorf("failed to dequeue task: %w", err)
	}
	if !ok {
		return nil
	}

	return w.process(ctx, task)
}

// process runs one execution attempt for a dequeued envelope. The
// task-scoped logger travels in the context so store and agent calls
// correlate with the tick.
func (w *Worker) process(ctx context.Context, task domain.Task) error {
	log := w.logger.With("task_id", task.ID, "role", task.Role)
	ctx = logger.WithLogger(ctx, log)

	if err := w.ensureTracked(ctx, task); err != nil {
		return err
	}

	attempt, err := w.tasks.BeginAttempt(ctx, task.ID)
	if err != nil {
		if errors.Is(err, store.ErrTaskTerminal) {
			// Duplicate envelope for a settled task; terminal states are
			// never resurrected.
			log.Warn("dropping envelope for terminal task")
			return nil
		}
		return fmt.Errorf("failed to begin attempt: %w", err)
	}

	log.Info("processing task", "attempt", attempt)

	result, invokeErr := w.registry.Invoke(ctx, task)
	if invokeErr != nil || result.Failed() {
		return w.settleFailure(ctx, task, attempt, result, invokeErr)
	}
	return w.settleSuccess(ctx, task, result)
}

// ensureTracked loads the store record for the envelope, creating it when
// an external producer enqueued without bookkeeping. A lost race with a
// concurrent creator is fine; the record exists either way.
func (w *Worker) ensureTracked(ctx context.Context, task domain.Task) error {
	_, err := w.tasks.Get(ctx, task.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load task record: %w", err)
	}

	tracked, err := domain.NewTrackedTask(task)
	if err != nil {
		return fmt.Errorf("invalid task envelope: %w", err)
	}
	if err := w.tasks.Add(ctx, tracked); err != nil && !store.IsDuplicateError(err) {
		return fmt.Errorf("failed to create task record: %w", err)
	}
	return nil
}

// settleSuccess records a completed attempt and refreshes the owning run.
func (w *Worker) settleSuccess(ctx context.Context, task domain.Task, result domain.AgentResult) error {
	if err := w.tasks.SetStatus(ctx, task.ID, domain.TaskStatusCompleted); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	if err := w.tasks.AppendHistory(ctx, task.ID, domain.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Status:    domain.TaskStatusCompleted,
		Notes:     result.Notes,
	}); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if err := w.refreshRun(ctx, task.RunID); err != nil {
		return err
	}

	w.counters.completed.Add(1)
	w.logger.Info("task completed", "task_id", task.ID, "role", task.Role)
	return nil
}

// settleFailure applies the retry/dead-letter policy to a failed attempt.
// Routing failures arrive here too and are treated like any capability
// failure.
func (w *Worker) settleFailure(ctx context.Context, task domain.Task, attempt int, result domain.AgentResult, invokeErr error) error {
	notes := failureNotes(result, invokeErr)
	log := w.logger.With("task_id", task.ID, "role", task.Role, "attempt", attempt)

	if attempt < w.config.MaxRetries {
		if err := w.tasks.SetStatus(ctx, task.ID, domain.TaskStatusQueued); err != nil {
			return fmt.Errorf("failed to requeue task: %w", err)
		}
		if err := w.tasks.AppendHistory(ctx, task.ID, domain.HistoryEntry{
			Timestamp: time.Now().UTC(),
			Status:    domain.TaskStatusQueued,
			Notes:     fmt.Sprintf("attempt %d failed: %s; retrying in %s", attempt, notes, w.config.Backoff),
		}); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}

		w.counters.retries.Add(1)
		w.scheduleRetry(task)
		log.Warn("task failed, retry scheduled", "error", notes, "backoff", w.config.Backoff)
		return nil
	}

	// Retry budget exhausted: the failure is terminal.
	if err := w.tasks.SetStatus(ctx, task.ID, domain.TaskStatusFailed); err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	if err := w.tasks.AppendHistory(ctx, task.ID, domain.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Status:    domain.TaskStatusFailed,
		Notes:     fmt.Sprintf("attempt %d failed: %s; retry budget exhausted", attempt, notes),
	}); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if w.deadLetter != nil {
		if err := w.deadLetter.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("failed to dead-letter task: %w", err)
		}
		w.counters.deadLettered.Add(1)
	}

	if err := w.refreshRun(ctx, task.RunID); err != nil {
		return err
	}

	w.counters.failed.Add(1)
	log.Error("task failed terminally", "error", notes)
	return nil
}

// scheduleRetry re-enqueues the envelope at the queue tail after the
// backoff delay. Handles are tracked per task id so Stop can cancel them.
func (w *Worker) scheduleRetry(task domain.Task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	w.timers[task.ID] = time.AfterFunc(w.config.Backoff, func() {
		w.mu.Lock()
		delete(w.timers, task.ID)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}

		if err := w.queue.Enqueue(context.Background(), task); err != nil {
			w.logger.Error("failed to re-enqueue task after backoff",
				"task_id", task.ID,
				"role", task.Role,
				"error", err)
		}
	})
}

// refreshRun recomputes the owning run's aggregate status from its member
// tasks. No-op when the task has no run or no run store is configured.
func (w *Worker) refreshRun(ctx context.Context, runID string) error {
	if runID == "" || w.runs == nil {
		return nil
	}

	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	statuses := make([]domain.TaskStatus, 0, len(run.TaskIDs))
	for _, id := range run.TaskIDs {
		rec, err := w.tasks.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Sibling not persisted yet; counts as queued.
				statuses = append(statuses, domain.TaskStatusQueued)
				continue
			}
			return fmt.Errorf("failed to load run member %s: %w", id, err)
		}
		statuses = append(statuses, rec.Status)
	}

	aggregate := domain.AggregateRunStatus(statuses)
	if aggregate == run.Status {
		return nil
	}
	if err := w.runs.SetStatus(ctx, runID, aggregate); err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}

	w.logger.Info("run status updated", "run_id", runID, "status", aggregate)
	return nil
}

// failureNotes renders a uniform failure description whether the agent
// raised an error or returned a failed result.
func failureNotes(result domain.AgentResult, invokeErr error) string {
	if invokeErr != nil {
		return invokeErr.Error()
	}
	if result.Notes != "" {
		return result.Notes
	}
	return "agent reported failure"
}
