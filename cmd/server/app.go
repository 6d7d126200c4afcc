package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crewplane/crewplane/internal/agent"
	"github.com/crewplane/crewplane/internal/api"
	"github.com/crewplane/crewplane/internal/config"
	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/engine"
	"github.com/crewplane/crewplane/internal/platform/memory"
	"github.com/crewplane/crewplane/internal/platform/postgres"
	"github.com/crewplane/crewplane/internal/platform/sqlite"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// application holds the wired components of the host process.
type application struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB // nil for the memory driver
	worker    *engine.Worker
	scheduler *engine.Scheduler // nil when disabled
	server    *http.Server
}

// newApplication wires queue, stores, registry, worker, scheduler, and the
// HTTP server from configuration.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := runMigrations(db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}

	primary, deadLetter, tasks, runs, err := buildPlatform(cfg, db, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	registry := agent.NewRegistry()
	// Capability implementations are deployed separately and registered by
	// the embedding host. Standalone, the echo agent seeds every crew role
	// so the pipeline is exercisable end to end.
	echo := agent.Echo()
	for _, role := range domain.KnownRoles() {
		registry.Register(role, echo)
	}
	registry.SetFallback(echo)

	worker := engine.NewWorker(primary, tasks, registry, engine.WorkerConfig{
		MaxRetries:   cfg.Worker.MaxRetries,
		Backoff:      time.Duration(cfg.Worker.BackoffMs) * time.Millisecond,
		PollInterval: time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
	}, logger)
	if deadLetter != nil {
		worker.SetDeadLetterQueue(deadLetter)
	}
	worker.SetRunStore(runs)

	var scheduler *engine.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = engine.NewScheduler(
			sweepSource(cfg.Scheduler.BatchSize),
			primary, tasks, runs,
			engine.SchedulerConfig{Interval: time.Duration(cfg.Scheduler.IntervalMs) * time.Millisecond},
			logger,
		)
	}

	handler := api.NewHandler(primary, tasks, runs, worker, scheduler, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &application{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		worker:    worker,
		scheduler: scheduler,
		server:    server,
	}, nil
}

// buildPlatform constructs the queue and store implementations for the
// configured driver.
func buildPlatform(cfg *config.Config, db *sql.DB, logger *slog.Logger) (primary, deadLetter queue.Queue, tasks store.TaskStore, runs store.RunStore, err error) {
	switch cfg.Database.Driver {
	case "memory":
		primary = memory.NewQueue(cfg.Queue.Name, logger)
		if cfg.Queue.DeadLetterName != "" {
			deadLetter = memory.NewQueue(cfg.Queue.DeadLetterName, logger)
		}
		tasks = memory.NewTaskStore()
		runs = memory.NewRunStore()
	case "postgres":
		primary = postgres.NewQueue(db, cfg.Queue.Name)
		if cfg.Queue.DeadLetterName != "" {
			deadLetter = postgres.NewQueue(db, cfg.Queue.DeadLetterName)
		}
		tasks = postgres.NewTaskStore(db)
		runs = postgres.NewRunStore(db)
	case "sqlite":
		primary = sqlite.NewQueue(db, cfg.Queue.Name)
		if cfg.Queue.DeadLetterName != "" {
			deadLetter = sqlite.NewQueue(db, cfg.Queue.DeadLetterName)
		}
		tasks = sqlite.NewTaskStore(db)
		runs = sqlite.NewRunStore(db)
	default:
		err = fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	return primary, deadLetter, tasks, runs, err
}

// sweepSource produces the scheduled batch: periodic scout sweeps that
// keep the crew's discovery work flowing without manual submissions.
func sweepSource(batchSize int) engine.TaskSource {
	if batchSize < 1 {
		batchSize = 1
	}
	return engine.SourceFunc(func(ctx context.Context) ([]domain.Task, error) {
		batch := make([]domain.Task, 0, batchSize)
		for i := 0; i < batchSize; i++ {
			task, err := domain.NewTask("", "", domain.RoleScout, "scheduled discovery sweep", map[string]any{
				"trigger": "schedule",
			})
			if err != nil {
				return nil, err
			}
			batch = append(batch, task)
		}
		return batch, nil
	})
}

// Run starts the worker loop, the scheduler, and the HTTP server, then
// blocks until ctx is cancelled and everything has shut down.
func (a *application) Run(ctx context.Context) error {
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	workerDone := make(chan struct{})
	if a.cfg.Worker.Enabled {
		go func() {
			defer close(workerDone)
			_ = a.worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown failed", "error", err)
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	cancelWorker()
	<-workerDone
	a.worker.Stop()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
