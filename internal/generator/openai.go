package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the chat-completions backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty keeps the library default
	Model   string
	Timeout time.Duration
}

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds the production backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(oc), model: model}
}

// Complete sends the system and user messages and returns the first choice.
func (b *OpenAIBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		MaxTokens:        p.MaxTokens,
		Temperature:      float32(p.Temperature),
		PresencePenalty:  float32(p.PresencePenalty),
		FrequencyPenalty: float32(p.FrequencyPenalty),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
