// internal/matching/explain/provider.go
package explain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrExplanationFailed  = errors.New("EXPLANATION_FAILED")
	ErrExplanationTimeout = errors.New("EXPLANATION_TIMEOUT")
	ErrEmptyResponse      = errors.New("EMPTY_RESPONSE")
)

// Provider turns a prompt into free text. Implementations must honour ctx.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// GenerationConfig is shared by the hosted providers.
type GenerationConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32

	// HTTPClient overrides the SDK default transport when set.
	HTTPClient *http.Client
}
