package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/opsmith/playbookpilot/internal/api/middleware"
	"github.com/opsmith/playbookpilot/internal/api/response"
	"github.com/opsmith/playbookpilot/internal/telemetry"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc

	GenerateHandler http.HandlerFunc

	CreateTemplateHandler http.HandlerFunc
	ListTemplatesHandler  http.HandlerFunc
	GetTemplateHandler    http.HandlerFunc
	UpdateTemplateHandler http.HandlerFunc
	DeleteTemplateHandler http.HandlerFunc
	RenderTemplateHandler http.HandlerFunc

	SubmitTaskHandler http.HandlerFunc
	CancelTaskHandler http.HandlerFunc
	GetTaskHandler    http.HandlerFunc
	ListTasksHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Post("/api/v1/playbooks/generate", orNotImplemented(deps.GenerateHandler))

	r.Post("/api/v1/templates", orNotImplemented(deps.CreateTemplateHandler))
	r.Get("/api/v1/templates", orNotImplemented(deps.ListTemplatesHandler))
	r.Get("/api/v1/templates/{templateID}", orNotImplemented(deps.GetTemplateHandler))
	r.Put("/api/v1/templates/{templateID}", orNotImplemented(deps.UpdateTemplateHandler))
	r.Delete("/api/v1/templates/{templateID}", orNotImplemented(deps.DeleteTemplateHandler))
	r.Post("/api/v1/templates/{templateID}/render", orNotImplemented(deps.RenderTemplateHandler))

	// The task id segment doubles as the queue job id on DELETE; chi requires
	// one wildcard name per segment across methods.
	r.Post("/api/v1/tasks", orNotImplemented(deps.SubmitTaskHandler))
	r.Get("/api/v1/tasks", orNotImplemented(deps.ListTasksHandler))
	r.Get("/api/v1/tasks/{id}", orNotImplemented(deps.GetTaskHandler))
	r.Delete("/api/v1/tasks/{id}", orNotImplemented(deps.CancelTaskHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
