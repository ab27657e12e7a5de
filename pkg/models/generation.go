package models

import "time"

// Safety levels accepted on generation requests.
const (
	SafetyLow    = "low"
	SafetyMedium = "medium"
	SafetyHigh   = "high"
)

// GenerationRequest describes what playbook to generate. Immutable once submitted.
type GenerationRequest struct {
	Description       string         `json:"description"`
	Hosts             string         `json:"hosts"`
	AdditionalContext string         `json:"additional_context,omitempty"`
	SafetyLevel       string         `json:"safety_level,omitempty"`
	Variables         map[string]any `json:"variables,omitempty"`
}

// GenerationMetadata records which backend produced a playbook and when.
type GenerationMetadata struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GenerationResult is the outcome of one generation attempt. Produced once per
// request and never mutated afterwards. PlaybookContent is nil on failure.
type GenerationResult struct {
	PlaybookContent  *string            `json:"playbook_content"`
	IsValid          bool               `json:"is_valid"`
	ValidationErrors []string           `json:"validation_errors"`
	Warnings         []string           `json:"warnings"`
	SafetyScore      float64            `json:"safety_score"`
	Metadata         GenerationMetadata `json:"generation_metadata"`
}
