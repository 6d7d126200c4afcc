package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewplane/crewplane/internal/domain"
	"github.com/crewplane/crewplane/internal/engine"
	"github.com/crewplane/crewplane/internal/queue"
	"github.com/crewplane/crewplane/internal/store"
)

// Handler serves the host HTTP surface. It honors the producer ordering
// contract: run record first, then task records, then queue envelopes, so
// a task is never visible in the queue before its bookkeeping exists.
type Handler struct {
	queue     queue.Queue
	tasks     store.TaskStore
	runs      store.RunStore
	worker    *engine.Worker
	scheduler *engine.Scheduler // optional
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates the host handler. The scheduler may be nil; the tick
// endpoint is only mounted when one is present.
func NewHandler(q queue.Queue, tasks store.TaskStore, runs store.RunStore, worker *engine.Worker, scheduler *engine.Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		queue:     q,
		tasks:     tasks,
		runs:      runs,
		worker:    worker,
		scheduler: scheduler,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SubmitRun handles POST /runs: create a run and its tasks, then enqueue.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error(), err)
		return
	}

	ctx := r.Context()

	tasks := make([]domain.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		task, err := domain.NewTask(tr.ID, "", domain.Role(tr.Role), tr.Description, tr.Payload)
		if err != nil {
			RespondWithError(w, r, http.StatusBadRequest, "invalid task: "+err.Error(), err)
			return
		}
		tasks = append(tasks, task)
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}

	run, err := domain.NewRunRecord(req.ID, domain.RunTypeManual, ids, req.Payload, req.Metadata)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid run: "+err.Error(), err)
		return
	}
	for i := range tasks {
		tasks[i].RunID = run.ID
	}

	if err := h.runs.Add(ctx, run); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	for _, t := range tasks {
		tracked, err := domain.NewTrackedTask(t)
		if err != nil {
			RespondWithError(w, r, http.StatusBadRequest, "invalid task: "+err.Error(), err)
			return
		}
		if err := h.tasks.Add(ctx, tracked); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
	}
	for _, t := range tasks {
		if err := h.queue.Enqueue(ctx, t); err != nil {
			RespondWithError(w, r, http.StatusServiceUnavailable, "failed to enqueue task", err)
			return
		}
	}

	h.logger.Info("run submitted", "run_id", run.ID, "tasks", len(tasks))
	RespondWithJSON(w, r, http.StatusCreated, SubmitRunResponse{RunID: run.ID, TaskIDs: ids})
}

// SubmitTask handles POST /tasks: enqueue a single task with no owning
// run; run bookkeeping is skipped entirely for it.
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error(), err)
		return
	}

	ctx := r.Context()

	task, err := domain.NewTask(req.ID, "", domain.Role(req.Role), req.Description, req.Payload)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid task: "+err.Error(), err)
		return
	}

	tracked, err := domain.NewTrackedTask(task)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid task: "+err.Error(), err)
		return
	}
	if err := h.tasks.Add(ctx, tracked); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if err := h.queue.Enqueue(ctx, task); err != nil {
		RespondWithError(w, r, http.StatusServiceUnavailable, "failed to enqueue task", err)
		return
	}

	h.logger.Info("task submitted", "task_id", task.ID, "role", task.Role)
	RespondWithJSON(w, r, http.StatusCreated, SubmitTaskResponse{TaskID: task.ID})
}

// GetTask handles GET /tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, TaskResponse{TrackedTask: task})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, RunResponse{RunRecord: run})
}

// GetMetrics handles GET /metrics.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, r, http.StatusOK, MetricsResponse{Worker: h.worker.Metrics()})
}

// TickScheduler handles POST /scheduler/tick: one synchronous cycle.
func (h *Handler) TickScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.TickOnce(r.Context()); err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "scheduler cycle failed", err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// respondStoreError maps store sentinel errors to HTTP statuses.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsNotFoundError(err):
		RespondWithError(w, r, http.StatusNotFound, "not found", err)
	case store.IsDuplicateError(err):
		RespondWithError(w, r, http.StatusConflict, "already exists", err)
	case errors.Is(err, store.ErrInvalidRecord):
		RespondWithError(w, r, http.StatusBadRequest, "invalid record", err)
	default:
		RespondWithError(w, r, http.StatusInternalServerError, "internal error", err)
	}
}
