package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

const (
	DefaultClaudeModel = "claude-3-5-haiku-latest"
	claudeMaxTokens    = 1024
)

// Claude summarizes with the Anthropic Messages API.
type Claude struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// NewClaude builds a summarizer. Extra options are passed to the SDK client.
func NewClaude(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *Claude {
	if model == "" {
		model = DefaultClaudeModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Claude{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

func (c *Claude) Summarize(ctx context.Context, req models.SummaryRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: claudeMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
		Temperature: anthropic.Float(0.3),
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	log.Debug().Str("model", c.model).Int("response_length", out.Len()).Dur("duration", time.Since(start)).Msg("Claude summary generated")
	return strings.TrimSpace(out.String()), nil
}
