// Package models contains shared data models used across the PlaybookPilot codebase.
package models

import (
	"context"
	"errors"
)

// Provider failure classes. Implementations classify transport and API errors
// into these sentinels so callers can branch with errors.Is.
var (
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrProviderTimeout     = errors.New("llm provider timeout")
	ErrProviderAuth        = errors.New("llm provider authentication failed")
	ErrProviderQuota       = errors.New("llm provider quota exceeded")
	ErrTruncatedOutput     = errors.New("llm output truncated at token limit")
)

// CompletionRequest is the input to a single LLM completion call.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// LLMProvider is the capability interface all LLM backends implement.
// Callers depend on this interface, never on a concrete provider.
type LLMProvider interface {
	// Complete sends a prompt and returns the raw model response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Model returns the configured model identifier.
	Model() string
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}
