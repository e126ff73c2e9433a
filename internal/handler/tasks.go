package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parserhub/hub-server-go/internal/config"
	apperrors "github.com/parserhub/hub-server-go/internal/errors"
	"github.com/parserhub/hub-server-go/internal/jobclient"
	"github.com/parserhub/hub-server-go/internal/middleware"
	"github.com/parserhub/hub-server-go/internal/model"
	"github.com/parserhub/hub-server-go/internal/service"
)

// Ledger is the slice of the task ledger the handler needs.
type Ledger interface {
	StartTask(ctx context.Context, user *model.User, params service.StartParams) (*model.ActiveTask, error)
	StopTask(ctx context.Context, userID int64, jobID string) (*model.ActiveTask, error)
	TaskStatus(ctx context.Context, userID int64, jobID string) (*jobclient.JobStatus, error)
	ListTasks(ctx context.Context, userID int64, svc *model.ServiceName) ([]model.ActiveTask, error)
}

type TaskHandler struct {
	ledger   Ledger
	cooldown *service.CooldownLimiter
}

func NewTaskHandler(ledger Ledger, cooldown *service.CooldownLimiter) *TaskHandler {
	return &TaskHandler{ledger: ledger, cooldown: cooldown}
}

func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{service}", h.Start)
	r.Get("/", h.List)
	r.Get("/{jobID}/status", h.Status)
	r.Post("/{jobID}/stop", h.Stop)

	return r
}

// POST /v1/tasks/{service}
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	svc := model.ServiceName(chi.URLParam(r, "service"))
	if !svc.Valid() {
		writeError(w, apperrors.InvalidInput("service", "must be workers or realty"))
		return
	}

	if !h.cooldown.Allow(user.ID, "task_start", config.ActionCooldown) {
		writeError(w, apperrors.CooldownActive())
		return
	}

	var req struct {
		TaskType string         `json:"taskType"`
		Options  map[string]any `json:"options"`
	}
	// The body is optional; an absent one starts the default task type.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	task, err := h.ledger.StartTask(r.Context(), user, service.StartParams{
		Service:  svc,
		TaskType: req.TaskType,
		Options:  req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formatTask(*task))
}

// GET /v1/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	var svcFilter *model.ServiceName
	if raw := r.URL.Query().Get("service"); raw != "" {
		svc := model.ServiceName(raw)
		if !svc.Valid() {
			writeError(w, apperrors.InvalidInput("service", "must be workers or realty"))
			return
		}
		svcFilter = &svc
	}

	tasks, err := h.ledger.ListTasks(r.Context(), user.ID, svcFilter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, formatTask(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// GET /v1/tasks/{jobID}/status
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	jobID := chi.URLParam(r, "jobID")
	status, err := h.ledger.TaskStatus(r.Context(), user.ID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":    status.JobID,
		"status":   status.Status,
		"progress": status.Progress,
	})
}

// POST /v1/tasks/{jobID}/stop
func (h *TaskHandler) Stop(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("authentication required"))
		return
	}

	jobID := chi.URLParam(r, "jobID")
	task, err := h.ledger.StopTask(r.Context(), user.ID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "stopped",
		"jobId":   task.JobID,
		"service": task.Service,
	})
}
