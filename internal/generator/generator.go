// Package generator turns natural-language requests into safety-validated
// Ansible playbooks via the configured LLM provider.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsmith/playbookpilot/internal/safety"
	"github.com/opsmith/playbookpilot/pkg/models"
)

const promptTemplate = `You are an expert Ansible playbook developer. Create a safe and well-structured Ansible playbook based on the following requirements:

DESCRIPTION: %s
HOSTS: %s
ADDITIONAL CONTEXT: %s

Requirements:
1. Use only safe, idempotent operations
2. Include proper error handling and validation
3. Use handlers for service restarts
4. Include proper task names and descriptions
5. Follow Ansible best practices
6. Avoid dangerous operations like rm -rf, dd, mkfs, etc.
7. Use become: yes only when necessary
8. Include proper variable usage where appropriate

Generate a complete, valid YAML playbook that can be executed immediately.`

// Generator orchestrates prompt construction, provider dispatch, extraction,
// and safety validation. Stateless and safe for concurrent use.
type Generator struct {
	provider    models.LLMProvider
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// New creates a Generator bound to one provider. MaxTokens bounds output
// length; temperature is fixed low for reproducibility-leaning determinism.
func New(provider models.LLMProvider, maxTokens int, temperature float64, timeout time.Duration) *Generator {
	return &Generator{
		provider:    provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}
}

// Generate produces one GenerationResult per request. Provider failures are
// local: they surface as an invalid result, never as a returned error.
func (g *Generator) Generate(ctx context.Context, req models.GenerationRequest) models.GenerationResult {
	prompt := fmt.Sprintf(promptTemplate, req.Description, req.Hosts, req.AdditionalContext)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.provider.Complete(callCtx, models.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		slog.Error("playbook generation failed", "provider", g.provider.Name(), "error", err)
		return g.failedResult(classifyFailure(err))
	}

	playbook := ExtractPlaybook(raw)

	verdict := safety.Evaluate(playbook, safety.ParseLevel(req.SafetyLevel))

	result := models.GenerationResult{
		IsValid:          verdict.Accepted,
		ValidationErrors: verdict.Errors(),
		Warnings:         verdict.Warnings,
		SafetyScore:      verdict.Score,
		Metadata:         g.metadata(),
	}
	result.PlaybookContent = &playbook
	return result
}

func (g *Generator) failedResult(reason string) models.GenerationResult {
	return models.GenerationResult{
		PlaybookContent:  nil,
		IsValid:          false,
		ValidationErrors: []string{reason},
		Warnings:         []string{},
		SafetyScore:      0,
		Metadata:         g.metadata(),
	}
}

func (g *Generator) metadata() models.GenerationMetadata {
	return models.GenerationMetadata{
		Provider:    g.provider.Name(),
		Model:       g.provider.Model(),
		GeneratedAt: time.Now().UTC(),
	}
}

// classifyFailure maps a provider error to a single caller-facing validation
// error naming the failure class.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, models.ErrTruncatedOutput):
		return "truncated output"
	case errors.Is(err, models.ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Generation failed: provider timeout"
	case errors.Is(err, models.ErrProviderAuth):
		return "Generation failed: provider authentication failure"
	case errors.Is(err, models.ErrProviderQuota):
		return "Generation failed: provider quota exceeded"
	default:
		return "Generation failed: provider unavailable"
	}
}
