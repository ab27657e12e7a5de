// Package handler contains the HTTP handlers consumed by the router.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsmith/playbookpilot/internal/api/response"
	"github.com/opsmith/playbookpilot/internal/scheduler"
	"github.com/opsmith/playbookpilot/internal/telemetry"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// PlaybookGenerator defines the generation capability the handler depends on.
type PlaybookGenerator interface {
	Generate(ctx context.Context, req models.GenerationRequest) models.GenerationResult
}

// TaskSubmitter is the scheduler capability used when the caller asks to
// schedule the generated playbook in the same request.
type TaskSubmitter interface {
	Submit(ctx context.Context, def scheduler.TaskDefinition) (*models.Task, error)
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/playbooks/generate.
func NewGenerateHandler(gen PlaybookGenerator, sched TaskSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description       string         `json:"description"`
			Hosts             string         `json:"hosts"`
			AdditionalContext string         `json:"additional_context"`
			SafetyLevel       string         `json:"safety_level"`
			Variables         map[string]any `json:"variables"`
			Schedule          bool           `json:"schedule"`
			Inventory         string         `json:"inventory"`
			RunTime           string         `json:"run_time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Description == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "description is required", nil)
			return
		}
		if req.Hosts == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "hosts is required", nil)
			return
		}

		var runTime time.Time
		if req.Schedule {
			if req.Inventory == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "inventory is required when scheduling", nil)
				return
			}
			var err error
			runTime, err = time.Parse(time.RFC3339, req.RunTime)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "run_time must be a valid RFC3339 timestamp", nil)
				return
			}
		}

		result := gen.Generate(r.Context(), models.GenerationRequest{
			Description:       req.Description,
			Hosts:             req.Hosts,
			AdditionalContext: req.AdditionalContext,
			SafetyLevel:       req.SafetyLevel,
			Variables:         req.Variables,
		})
		if result.IsValid {
			telemetry.GenerationsValid.Inc()
		} else {
			telemetry.GenerationsInvalid.Inc()
		}

		if !req.Schedule || !result.IsValid {
			response.JSON(w, result)
			return
		}

		task, err := sched.Submit(r.Context(), scheduler.TaskDefinition{
			PlaybookContent: result.PlaybookContent,
			Inventory:       req.Inventory,
			RunTime:         runTime,
			IsGenerated:     true,
			SafetyValidated: true,
			GenerationMeta: map[string]any{
				"provider":     result.Metadata.Provider,
				"model":        result.Metadata.Model,
				"generated_at": result.Metadata.GeneratedAt,
				"safety_score": result.SafetyScore,
			},
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "SCHEDULING_FAILED", "Playbook generated but scheduling failed", err.Error())
			return
		}
		telemetry.TasksSubmitted.Inc()

		response.Created(w, map[string]any{
			"generation": result,
			"task":       task,
		})
	}
}
