package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opsmith/playbookpilot/internal/api/response"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/internal/telemetry"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// NewSubmitTaskHandler returns an http.HandlerFunc for POST /api/v1/tasks.
func NewSubmitTaskHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PlaybookPath    *string        `json:"playbook_path"`
			PlaybookContent *string        `json:"playbook_content"`
			Inventory       string         `json:"inventory"`
			RunTime         string         `json:"run_time"`
			IsGenerated     bool           `json:"is_generated"`
			SafetyValidated bool           `json:"safety_validated"`
			GenerationMeta  map[string]any `json:"generation_metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Inventory == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "inventory is required", nil)
			return
		}
		runTime, err := time.Parse(time.RFC3339, req.RunTime)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "run_time must be a valid RFC3339 timestamp", nil)
			return
		}

		task, err := sched.Submit(r.Context(), scheduler.TaskDefinition{
			PlaybookPath:    req.PlaybookPath,
			PlaybookContent: req.PlaybookContent,
			Inventory:       req.Inventory,
			RunTime:         runTime,
			IsGenerated:     req.IsGenerated,
			SafetyValidated: req.SafetyValidated,
			GenerationMeta:  req.GenerationMeta,
		})
		if errors.Is(err, scheduler.ErrUnvalidatedPlaybook) {
			response.Error(w, http.StatusUnprocessableEntity, "UNVALIDATED_PLAYBOOK",
				"Generated playbooks must pass safety validation before scheduling", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit task", err.Error())
			return
		}
		telemetry.TasksSubmitted.Inc()

		response.Created(w, map[string]any{
			"task_id": task.ID,
			"job_id":  task.QueueJobID,
			"message": "Task added to the queue",
		})
	}
}

// NewCancelTaskHandler returns an http.HandlerFunc for DELETE /api/v1/tasks/{jobID}.
// Cancellation is best-effort: a job already running or unknown reports 404.
func NewCancelTaskHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id is required", nil)
			return
		}

		revoked, err := sched.Cancel(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel task", nil)
			return
		}
		if !revoked {
			response.Error(w, http.StatusNotFound, "NOT_REVOCABLE", "Task cannot be revoked", nil)
			return
		}
		telemetry.TasksRevoked.Inc()
		response.JSON(w, map[string]string{"message": "Task revoked"})
	}
}

// NewGetTaskHandler returns an http.HandlerFunc for GET /api/v1/tasks/{taskID}.
func NewGetTaskHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "task id must be a valid UUID", nil)
			return
		}
		task, err := sched.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Task not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load task", nil)
			return
		}
		response.JSON(w, task)
	}
}

// NewListTasksHandler returns an http.HandlerFunc for GET /api/v1/tasks.
func NewListTasksHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := sched.List(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tasks", nil)
			return
		}
		if tasks == nil {
			tasks = []*models.Task{}
		}
		response.JSON(w, tasks)
	}
}
