package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ahrav/go-recall/internal/domain"
)

// Answerer turns a question and its retrieved context into a final answer.
type Answerer struct {
	provider    Provider
	maxSnippets int
	timeout     time.Duration
	logger      *slog.Logger
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithMaxSnippets overrides the snippet cap.
func WithMaxSnippets(n int) AnswererOption { return func(a *Answerer) { a.maxSnippets = n } }

// WithTimeout bounds each provider call. Zero leaves the caller's deadline.
func WithTimeout(d time.Duration) AnswererOption { return func(a *Answerer) { a.timeout = d } }

// WithLogger sets the answerer's logger.
func WithLogger(l *slog.Logger) AnswererOption {
	return func(a *Answerer) { a.logger = l.With("component", "generation") }
}

// NewAnswerer wraps provider.
func NewAnswerer(provider Provider, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		provider:    provider,
		maxSnippets: DefaultMaxSnippets,
		logger:      slog.Default().With("component", "generation"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the underlying provider name.
func (a *Answerer) Provider() string { return a.provider.Name() }

// Answer makes one generation call and returns the trimmed text, or "" when
// the provider returned no content.
func (a *Answerer) Answer(ctx context.Context, question string, snippets []domain.ContextSnippet) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(question, snippets, a.maxSnippets)
	text, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		a.logger.Debug("provider returned no content", "provider", a.provider.Name())
	}
	return answer, nil
}
