package models

import (
	"time"

	"github.com/google/uuid"
)

// Variable schema field types.
const (
	FieldString  = "string"
	FieldInteger = "integer"
	FieldNumber  = "number"
	FieldBoolean = "boolean"
)

// FieldSpec constrains one template variable.
type FieldSpec struct {
	Type    string `json:"type"`
	Default any    `json:"default,omitempty"`
	Enum    []any  `json:"enum,omitempty"`
}

// VariableSchema is the closed-world definition of which variables a template
// accepts. Names absent from Properties are illegal in a render request.
type VariableSchema struct {
	Properties map[string]FieldSpec `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// IsRequired reports whether a field name appears in the required list.
func (s *VariableSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Template is a parameterized playbook body. Templates are soft-deleted:
// DeletedAt is set and the row is kept for audit history, never purged.
type Template struct {
	ID          uuid.UUID       `db:"id"          json:"id"`
	Name        string          `db:"name"        json:"name"`
	Description *string         `db:"description" json:"description,omitempty"`
	Content     string          `db:"content"     json:"content"`
	Schema      *VariableSchema `db:"schema"      json:"variables_schema,omitempty"`
	DeletedAt   *time.Time      `db:"deleted_at"  json:"deleted_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"  json:"updated_at"`
}
