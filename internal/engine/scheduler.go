package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// TaskSource produces the batch of tasks for one scheduler cycle. What the
// batch contains is application-specific; the scheduler only needs task
// envelopes. Returning an empty batch is the normal way to skip a cycle.
type TaskSource interface {
	Produce(ctx context.Context) ([]domain.Task, error)
}

// SourceFunc adapts an ordinary function to the TaskSource interface.
type SourceFunc func(ctx context.Context) ([]domain.Task, error)

// Produce calls the underlying function.
func (f SourceFunc) Produce(ctx context.Context) ([]domain.Task, error) {
	return f(ctx)
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// Interval is the fixed delay between cycles.
	Interval time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: time.Minute,
	}
}

// Scheduler periodically asks its source for a batch of tasks and pushes
// the batch through the same path an external producer would use: run
// record first, then the tracked task records, then the queue envelopes.
// A task is therefore never visible in the queue before its bookkeeping
// exists.
type Scheduler struct {
	source TaskSource
	queue  queue.Queue
	tasks  store.TaskStore
	runs   store.RunStore
	config SchedulerConfig
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a scheduler over the given source, queue, and
// stores.
func NewScheduler(source TaskSource, q queue.Queue, tasks store.TaskStore, runs store.RunStore, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}

	return &Scheduler{
		source: source,
		queue:  q,
		tasks:  tasks,
		runs:   runs,
		config: config,
		logger: logger,
	}
}

// fixedDelay is a cron.Schedule that fires at the exact configured
// interval. cron.Every cannot serve here: it rounds delays under a second
// up to a full second and truncates fractional seconds.
type fixedDelay time.Duration

// Next returns the next activation time, interval after t.
func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

// Start begins firing cycles at the configured interval. Calling Start on
// a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return
	}

	c := cron.New()
	c.Schedule(fixedDelay(s.config.Interval), cron.FuncJob(func() {
		if err := s.TickOnce(context.Background()); err != nil {
			s.logger.Error("scheduler cycle failed", "error", err)
		}
	}))

	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "interval", s.config.Interval)
}

// Stop halts the timer and waits for an in-flight cycle to finish, so
// shutdown is deterministic.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// TickOnce runs one cycle synchronously: produce a batch, persist the run
// and task records, enqueue the envelopes. When the source produces zero
// tasks nothing is persisted; empty runs are never created.
func (s *Scheduler) TickOnce(ctx context.Context) error {
	batch, err := s.source.Produce(ctx)
	if err != nil {
		return fmt.Errorf("task source failed: %w", err)
	}
	if len(batch) == 0 {
		s.logger.Debug("scheduler cycle produced no tasks")
		return nil
	}

	// Sources may leave ids empty; fix them before the run captures them.
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}

	run, err := domain.NewRunRecord("", domain.RunTypeSchedule, taskIDs(batch), nil, map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	// Claim the batch for this run before anything is persisted.
	for i := range batch {
		batch[i].RunID = run.ID
	}

	if err := s.runs.Add(ctx, run); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}

	for _, t := range batch {
		tracked, err := domain.NewTrackedTask(t)
		if err != nil {
			return fmt.Errorf("invalid task in batch: %w", err)
		}
		if err := s.tasks.Add(ctx, tracked); err != nil {
			return fmt.Errorf("failed to persist task %s: %w", t.ID, err)
		}
	}

	for _, t := range batch {
		if err := s.queue.Enqueue(ctx, t); err != nil {
			return fmt.Errorf("failed to enqueue task %s: %w", t.ID, err)
		}
	}

	s.logger.Info("scheduler cycle complete", "run_id", run.ID, "tasks", len(batch))
	return nil
}

// taskIDs collects the ids of a batch in enqueue order.
func taskIDs(batch []domain.Task) []string {
	ids := make([]string, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	return ids
}
