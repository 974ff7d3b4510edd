// internal/matching/explain/openai.go
package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"

	systemPrompt = "You explain clinical trial eligibility results to patients in clear, empathetic language."
)

// OpenAIProvider generates explanations with the chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	config GenerationConfig
}

// NewOpenAIProvider builds a provider. baseURL may be empty for the public API.
func NewOpenAIProvider(apiKey, baseURL string, cfg GenerationConfig) (*OpenAIProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), config: cfg}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.config.Temperature,
	}
	if o.config.MaxTokens > 0 {
		req.MaxCompletionTokens = o.config.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
