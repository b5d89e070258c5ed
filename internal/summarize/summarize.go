package summarize

import (
	"context"
	"fmt"
	"time"

	"podcast-digest/internal/pipeline"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and configures the summarization provider.
type Config struct {
	Provider       string
	AnthropicKey   string
	AnthropicModel string
	GeminiKey      string
	GeminiModel    string
	Timeout        time.Duration
}

// New returns the summarizer named by cfg.Provider.
func New(ctx context.Context, cfg Config) (pipeline.Summarizer, error) {
	switch cfg.Provider {
	case ProviderAnthropic, "":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the %s summarizer", ProviderAnthropic)
		}
		return NewClaude(cfg.AnthropicKey, cfg.AnthropicModel, cfg.Timeout), nil
	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the %s summarizer", ProviderGemini)
		}
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("unknown summarizer %q", cfg.Provider)
}
