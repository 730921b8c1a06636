// Package mt implements pipeline.MTPort with two interchangeable
// LLM-backed translators (openai_mt.go, anthropic_mt.go), each sending a
// single-purpose translation prompt rather than general chat completion.
package mt

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

func translationSystemPrompt(sourceLang, targetLang pipeline.Language) string {
	return fmt.Sprintf(
		"You are a real-time speech translation engine. Translate the user's text from %s to %s. "+
			"Output ONLY the translation, with no quotation marks, explanation, or commentary.",
		sourceLang, targetLang,
	)
}

// OpenAIMT implements pipeline.MTPort using an OpenAI chat completion.
type OpenAIMT struct {
	client *openai.Client
	model  string
}

// NewOpenAIMT constructs an OpenAIMT around an API key and chat model.
func NewOpenAIMT(apiKey, model string) *OpenAIMT {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIMT{client: openai.NewClient(apiKey), model: model}
}

// NewOpenAIMTWithBaseURL is the test/Azure-compatible constructor.
func NewOpenAIMTWithBaseURL(apiKey, baseURL, model string) *OpenAIMT {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIMT{client: openai.NewClientWithConfig(cfg), model: model}
}

// Translate implements pipeline.MTPort.
func (o *OpenAIMT) Translate(ctx context.Context, text string, sourceLang, targetLang pipeline.Language) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translationSystemPrompt(sourceLang, targetLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("openai mt: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai mt: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Name implements pipeline.MTPort.
func (o *OpenAIMT) Name() string { return "openai_mt" }
