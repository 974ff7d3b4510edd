// internal/matching/explain/gemini.go
package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro-latest"

// GeminiProvider generates explanations with the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	config GenerationConfig
}

func NewGeminiProvider(ctx context.Context, apiKey string, cfg GenerationConfig) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, config: cfg}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	gen := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.config.Temperature),
	}
	if g.config.MaxTokens > 0 {
		gen.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), gen)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}

	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
