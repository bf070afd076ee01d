// Package llm provides the LLM provider implementations, the per-model
// factory, and the tool executor used by the research stage.
package llm

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
)

// ProviderFactory resolves generators by model name. Gemini is the primary
// provider and must be configured; Claude is optional and only constructed
// when its API key is present.
type ProviderFactory struct {
	gemini *GeminiProvider
	claude *ClaudeProvider
	logger arbor.ILogger
}

// NewProviderFactory builds providers from configuration. A missing Gemini
// key is fatal; a missing Claude key disables claude-* models.
func NewProviderFactory(cfg *common.Config, logger arbor.ILogger) (*ProviderFactory, error) {
	gemini, err := NewGeminiProvider(&cfg.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini provider: %w", err)
	}

	factory := &ProviderFactory{
		gemini: gemini,
		logger: logger,
	}

	if cfg.Claude.APIKey != "" {
		claude, err := NewClaudeProvider(&cfg.Claude, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Claude provider: %w", err)
		}
		factory.claude = claude
	} else {
		logger.Debug().Msg("Claude API key not set, claude models unavailable")
	}

	return factory, nil
}

// ForModel returns the generator serving the given model name. Model names
// prefixed "claude" route to Anthropic; everything else routes to Gemini.
func (f *ProviderFactory) ForModel(model string) (interfaces.Generator, error) {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		if f.claude == nil {
			return nil, fmt.Errorf("model %q requires the Claude provider but no Anthropic API key is configured", model)
		}
		return f.claude, nil
	}
	return f.gemini, nil
}

// ToolingForModel returns the tool-capable generator for a model, or nil when
// the model's provider does not support tool rounds.
func (f *ProviderFactory) ToolingForModel(model string) interfaces.ToolingGenerator {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return nil
	}
	return f.gemini
}

// Close releases all provider resources.
func (f *ProviderFactory) Close() error {
	if f.gemini != nil {
		return f.gemini.Close()
	}
	return nil
}
