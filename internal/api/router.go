package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewplane/crewplane/internal/platform/logger"
)

// NewRouter builds the host's HTTP routes over the given handler. The
// scheduler tick endpoint is only mounted when a scheduler is wired.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Post("/runs", h.SubmitRun)
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/tasks", h.SubmitTask)
	r.Get("/tasks/{id}", h.GetTask)
	r.Get("/metrics", h.GetMetrics)

	if h.scheduler != nil {
		r.Post("/scheduler/tick", h.TickScheduler)
	}

	return r
}

// requestLogger stores a request-scoped logger tagged with the request id
// in the context, where logger.FromContext picks it up downstream.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := base.With("request_id", middleware.GetReqID(ctx))
			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
