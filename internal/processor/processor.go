// Package processor resolves one question item to one hypothesis answer.
// Every failure path ends in a result record with an empty hypothesis; no
// error from a remote call escapes Process.
package processor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-recall/internal/domain"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
	"github.com/ahrav/go-recall/internal/retry"
)

// Operation names used for retry logs and metrics.
const (
	OpContextSearch = "context_search"
	OpGeneration    = "generation"
)

// Item outcome statuses reported to Metrics.
const (
	StatusAnswered         = "answered"
	StatusEmptyAnswer      = "empty_answer"
	StatusSearchFailed     = "search_failed"
	StatusGenerationFailed = "generation_failed"
)

// Searcher retrieves context snippets for a question.
type Searcher interface {
	Search(ctx context.Context, question string) ([]domain.ContextSnippet, error)
}

// Answerer produces an answer from a question and its snippets.
type Answerer interface {
	Answer(ctx context.Context, question string, snippets []domain.ContextSnippet) (string, error)
}

// Metrics receives one outcome per processed item.
type Metrics interface {
	ObserveItem(status string)
}

// ItemProcessor composes search, generation and the retry policy.
// It is safe for concurrent use when its collaborators are.
type ItemProcessor struct {
	searcher Searcher
	answerer Answerer
	policy   *retry.Policy
	logger   *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer
}

// Option configures an ItemProcessor.
type Option func(*ItemProcessor)

// WithLogger sets the processor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *ItemProcessor) { p.logger = l.With("component", "processor") }
}

// WithMetrics records item outcomes.
func WithMetrics(m Metrics) Option { return func(p *ItemProcessor) { p.metrics = m } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(p *ItemProcessor) { p.tracer = t } }

// New builds an ItemProcessor.
func New(searcher Searcher, answerer Answerer, policy *retry.Policy, opts ...Option) *ItemProcessor {
	p := &ItemProcessor{
		searcher: searcher,
		answerer: answerer,
		policy:   policy,
		logger:   slog.Default().With("component", "processor"),
		tracer:   otel.Tracer("github.com/ahrav/go-recall/internal/processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process searches for context, then generates an answer from it, each
// step through the retry policy. A search that exhausts its retries skips
// generation. The returned error is always nil; it exists so callers can
// treat this as one implementation of a fallible processor.
func (p *ItemProcessor) Process(ctx context.Context, item domain.Item, idx int) (domain.ItemResult, error) {
	ctx, span := p.tracer.Start(ctx, "processor.Process", trace.WithAttributes(
		attribute.String("question_id", item.QuestionID),
		attribute.Int("idx", idx),
	))
	defer span.End()

	search := retry.Do(ctx, p.policy, OpContextSearch, func(ctx context.Context) ([]domain.ContextSnippet, error) {
		return p.searcher.Search(ctx, item.Question)
	})
	if !search.Ok() {
		return p.fail(span, item, idx, StatusSearchFailed, search.Err), nil
	}
	span.SetAttributes(attribute.Int("snippets", len(search.Value)))

	answer := retry.Do(ctx, p.policy, OpGeneration, func(ctx context.Context) (string, error) {
		return p.answerer.Answer(ctx, item.Question, search.Value)
	})
	if !answer.Ok() {
		return p.fail(span, item, idx, StatusGenerationFailed, answer.Err), nil
	}

	status := StatusAnswered
	if answer.Value == "" {
		status = StatusEmptyAnswer
	}
	p.observe(status)
	span.SetAttributes(attribute.String("status", status))

	return domain.ItemResult{QuestionID: item.QuestionID, Hypothesis: answer.Value, Idx: idx}, nil
}

// fail records a permanent item failure and returns its empty result.
func (p *ItemProcessor) fail(span trace.Span, item domain.Item, idx int, status string, err error) domain.ItemResult {
	p.logger.Error("item failed",
		"question_id", item.QuestionID,
		"idx", idx,
		"status", status,
		"error_type", evalerrors.Classify(err),
		"error", err)
	p.observe(status)
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	return domain.EmptyResult(item, idx)
}

func (p *ItemProcessor) observe(status string) {
	if p.metrics != nil {
		p.metrics.ObserveItem(status)
	}
}
