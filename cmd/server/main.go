// Package main implements the crewplane host process: it wires the
// orchestration engine (queue, stores, agent registry, worker, scheduler)
// to a configured backend and exposes the HTTP surface for submitting and
// inspecting work.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crewplane/crewplane/internal/config"
	"github.com/crewplane/crewplane/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logg, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	logg.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"worker_enabled", cfg.Worker.Enabled,
		"scheduler_enabled", cfg.Scheduler.Enabled)

	app, err := newApplication(cfg, logg)
	if err != nil {
		logg.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logg.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
