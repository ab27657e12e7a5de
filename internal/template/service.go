package template

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsmith/playbookpilot/internal/store"
	"github.com/opsmith/playbookpilot/pkg/models"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidSchema = errors.New("invalid variable schema")

// Service manages template records and renders them by id.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Create persists a new template after checking that its variable schema is a
// well-formed schema document.
func (s *Service) Create(ctx context.Context, name string, description *string, content string, schema *models.VariableSchema) (*models.Template, error) {
	if schema != nil {
		if err := compileSchema(schema); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}

	tpl := &models.Template{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Content:     content,
		Schema:      schema,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("creating template: %w", err)
	}
	slog.Info("template created", "template_id", tpl.ID, "name", tpl.Name)
	return tpl, nil
}

// Get returns a template. Deleted templates are hidden unless includeDeleted
// is set (audit tooling escape hatch).
func (s *Service) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Template, error) {
	return s.store.GetTemplate(ctx, id, includeDeleted)
}

func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*models.Template, error) {
	return s.store.ListTemplates(ctx, includeDeleted)
}

// Update replaces the mutable fields of an existing template.
func (s *Service) Update(ctx context.Context, tpl *models.Template) error {
	if tpl.Schema != nil {
		if err := compileSchema(tpl.Schema); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return s.store.UpdateTemplate(ctx, tpl)
}

// Delete soft-deletes a template; the row is kept for audit history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDeleteTemplate(ctx, id); err != nil {
		return err
	}
	slog.Info("template deleted", "template_id", id)
	return nil
}

// RenderByID loads a live template and renders it against the variable map.
func (s *Service) RenderByID(ctx context.Context, id uuid.UUID, vars map[string]any) (string, []string, error) {
	tpl, err := s.store.GetTemplate(ctx, id, false)
	if err != nil {
		return "", nil, err
	}
	rendered, validationErrs := Render(tpl, vars)
	return rendered, validationErrs, nil
}

// SeedDefaults installs the built-in templates if they are not present yet.
// Idempotent; called once at server startup.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, seed := range defaultTemplates {
		_, err := s.store.GetTemplateByName(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checking default template %q: %w", seed.Name, err)
		}
		if _, err := s.Create(ctx, seed.Name, seed.Description, seed.Content, seed.Schema); err != nil {
			return fmt.Errorf("seeding default template %q: %w", seed.Name, err)
		}
	}
	return nil
}

// compileSchema rejects malformed schema documents up front by compiling the
// JSON Schema equivalent of the variable schema.
func compileSchema(schema *models.VariableSchema) error {
	doc := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
	}
	props := make(map[string]any, len(schema.Properties))
	for name, spec := range schema.Properties {
		p := map[string]any{"type": spec.Type}
		if spec.Default != nil {
			p["default"] = spec.Default
		}
		if len(spec.Enum) > 0 {
			p["enum"] = spec.Enum
		}
		props[name] = p
	}
	doc["properties"] = props
	if len(schema.Required) > 0 {
		doc["required"] = schema.Required
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inmemory://variables-schema", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := compiler.Compile("inmemory://variables-schema"); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}
