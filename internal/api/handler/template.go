package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opsmith/playbookpilot/internal/api/response"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/internal/template"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// NewCreateTemplateHandler returns an http.HandlerFunc for POST /api/v1/templates.
func NewCreateTemplateHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string                 `json:"name"`
			Description *string                `json:"description"`
			Content     string                 `json:"template_content"`
			Schema      *models.VariableSchema `json:"variables_schema"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if req.Content == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "template_content is required", nil)
			return
		}

		tpl, err := svc.Create(r.Context(), req.Name, req.Description, req.Content, req.Schema)
		if errors.Is(err, template.ErrInvalidSchema) {
			response.Error(w, http.StatusBadRequest, "INVALID_SCHEMA", err.Error(), nil)
			return
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_NAME", "A template with this name already exists", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create template", nil)
			return
		}
		response.Created(w, tpl)
	}
}

// NewListTemplatesHandler returns an http.HandlerFunc for GET /api/v1/templates.
// ?include_deleted=true is the audit-tooling escape hatch.
func NewListTemplatesHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeDeleted := r.URL.Query().Get("include_deleted") == "true"
		templates, err := svc.List(r.Context(), includeDeleted)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list templates", nil)
			return
		}
		if templates == nil {
			templates = []*models.Template{}
		}
		response.JSON(w, templates)
	}
}

// NewGetTemplateHandler returns an http.HandlerFunc for GET /api/v1/templates/{templateID}.
func NewGetTemplateHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := templateID(w, r)
		if !ok {
			return
		}
		includeDeleted := r.URL.Query().Get("include_deleted") == "true"
		tpl, err := svc.Get(r.Context(), id, includeDeleted)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load template", nil)
			return
		}
		response.JSON(w, tpl)
	}
}

// NewUpdateTemplateHandler returns an http.HandlerFunc for PUT /api/v1/templates/{templateID}.
// Omitted fields keep their current values.
func NewUpdateTemplateHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := templateID(w, r)
		if !ok {
			return
		}
		var req struct {
			Name        *string                `json:"name"`
			Description *string                `json:"description"`
			Content     *string                `json:"template_content"`
			Schema      *models.VariableSchema `json:"variables_schema"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		tpl, err := svc.Get(r.Context(), id, false)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load template", nil)
			return
		}

		if req.Name != nil {
			tpl.Name = *req.Name
		}
		if req.Description != nil {
			tpl.Description = req.Description
		}
		if req.Content != nil {
			tpl.Content = *req.Content
		}
		if req.Schema != nil {
			tpl.Schema = req.Schema
		}

		err = svc.Update(r.Context(), tpl)
		if errors.Is(err, template.ErrInvalidSchema) {
			response.Error(w, http.StatusBadRequest, "INVALID_SCHEMA", err.Error(), nil)
			return
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_NAME", "A template with this name already exists", nil)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update template", nil)
			return
		}
		response.JSON(w, tpl)
	}
}

// NewDeleteTemplateHandler returns an http.HandlerFunc for DELETE /api/v1/templates/{templateID}.
func NewDeleteTemplateHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := templateID(w, r)
		if !ok {
			return
		}
		err := svc.Delete(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete template", nil)
			return
		}
		response.JSON(w, map[string]string{"message": "Template deleted"})
	}
}

// NewRenderTemplateHandler returns an http.HandlerFunc for POST /api/v1/templates/{templateID}/render.
func NewRenderTemplateHandler(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := templateID(w, r)
		if !ok {
			return
		}
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}

		rendered, validationErrs, err := svc.RenderByID(r.Context(), id, req.Variables)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render template", nil)
			return
		}
		if len(validationErrs) > 0 {
			response.Error(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Variable validation failed", validationErrs)
			return
		}
		response.JSON(w, map[string]string{"rendered": rendered})
	}
}

func templateID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "templateID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
