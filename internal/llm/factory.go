// Package llm selects and constructs the configured LLM provider.
package llm

import (
	"fmt"

	"github.com/opsmith/playbookpilot/internal/config"
	"github.com/opsmith/playbookpilot/internal/llm/anthropic"
	"github.com/opsmith/playbookpilot/internal/llm/ollama"
	"github.com/opsmith/playbookpilot/internal/llm/openai"
	"github.com/opsmith/playbookpilot/pkg/models"
)

// NewProvider constructs the appropriate LLM provider based on config.
// Called once at server startup; never re-dispatched per call.
func NewProvider(cfg config.LLMConfig) (models.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: must be one of ollama, openai, anthropic", cfg.Provider)
	}
}
