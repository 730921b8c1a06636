package mt

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

// AnthropicMT implements pipeline.MTPort using Claude's standard Messages
// API. Grounded on the llms/anthropic adapter's client construction, but
// uses the plain (non-Beta) Messages.New call rather than Beta.Messages.New:
// a single-turn translation prompt needs none of the Beta surface's extra
// features.
type AnthropicMT struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicMT constructs an AnthropicMT around an API key and model.
func NewAnthropicMT(apiKey string, model anthropic.Model) *AnthropicMT {
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &AnthropicMT{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// NewAnthropicMTWithBaseURL is the test-friendly constructor.
func NewAnthropicMTWithBaseURL(apiKey, baseURL string, model anthropic.Model) *AnthropicMT {
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &AnthropicMT{
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		model:  model,
	}
}

// Translate implements pipeline.MTPort.
func (a *AnthropicMT) Translate(ctx context.Context, text string, sourceLang, targetLang pipeline.Language) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: translationSystemPrompt(sourceLang, targetLang)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic mt: %w", err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("anthropic mt: no content blocks returned")
	}
	return strings.TrimSpace(message.Content[0].Text), nil
}

// Name implements pipeline.MTPort.
func (a *AnthropicMT) Name() string { return "anthropic_mt" }
