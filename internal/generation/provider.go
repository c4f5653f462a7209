// Package generation produces fallback answers from retrieved context using
// a hosted language model. Providers issue exactly one call per Complete;
// retries belong to the caller's retry policy.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-recall/internal/configuration"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// ErrUnknownProvider indicates a provider name with no implementation.
var ErrUnknownProvider = errors.New("unknown generation provider")

// Provider sends one prompt to a model and returns its raw text.
// An empty string with a nil error means the model produced no content.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg configuration.GenerationConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderGoogle:
		return NewGoogle(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
