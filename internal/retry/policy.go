// Package retry provides the policy object that wraps a fallible remote call
// with bounded attempts and exponential backoff. Each remote call is retried
// in isolation, so work that already succeeded is never repeated.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-recall/internal/configuration"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

var (
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// Metrics receives per-attempt and per-operation outcomes.
type Metrics interface {
	ObserveAttempt(operation string, failed bool)
	ObserveExhausted(operation string)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy executes operations with bounded retries. A Policy is safe for
// concurrent use; concurrent Execute calls share only the statistics.
type Policy struct {
	config  configuration.RetryConfig
	logger  *slog.Logger
	metrics Metrics
	sleep   Sleeper
	onRetry func(operation string, attempt int, backoff time.Duration, err error)
	stats   *retryStats
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) { p.logger = l.With("component", "retry") }
}

// WithMetrics records attempt outcomes.
func WithMetrics(m Metrics) Option { return func(p *Policy) { p.metrics = m } }

// WithSleeper replaces the context-aware timer used between attempts.
func WithSleeper(s Sleeper) Option { return func(p *Policy) { p.sleep = s } }

// WithOnRetry registers a hook invoked after every failed attempt that will
// be retried.
func WithOnRetry(fn func(operation string, attempt int, backoff time.Duration, err error)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// New validates cfg and builds a Policy.
func New(cfg configuration.RetryConfig, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		sleep:  sleepContext,
		stats:  &retryStats{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Execute runs fn until it succeeds, MaxAttempts is reached, fn returns an
// error marked Permanent, or ctx is cancelled. Between failed attempts it
// waits Backoff(attempt) without blocking other goroutines. When all
// attempts fail the last error is returned wrapped in a RetryExhaustedError.
func (p *Policy) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := p.run(ctx, operation, fn)
	return err
}

// run is Execute reporting the number of attempts made.
func (p *Policy) run(ctx context.Context, operation string, fn func(context.Context) error) (int, error) {
	// Fail fast if context is already cancelled to avoid wasted attempts.
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w: %w", operation, errContextCancelledBeforeRetry, ctx.Err())
	default:
	}

	var lastErr error
	startTime := time.Now()
	attempts := 0

	for attempt := range p.config.MaxAttempts {
		err := fn(ctx)
		attempts++
		p.stats.totalAttempts.Add(1)
		p.observeAttempt(operation, err != nil)

		if err == nil {
			if attempt > 0 {
				p.stats.successfulRetries.Add(1)
				p.logger.Info("operation succeeded after retry",
					"operation", operation,
					"attempts", attempts)
			} else {
				p.stats.successfulFirstAttempts.Add(1)
			}
			return attempts, nil
		}
		lastErr = err

		// The caller gave up; its cancellation is not a remote failure.
		if ctx.Err() != nil {
			return attempts, fmt.Errorf("%s: %w: %w", operation, errContextCancelledDuringRetry, err)
		}

		if evalerrors.IsPermanent(err) {
			p.logger.Warn("attempt failed permanently",
				"operation", operation,
				"attempt", attempts,
				"error", err)
			break
		}

		if attempts == p.config.MaxAttempts {
			p.logger.Warn("attempt failed",
				"operation", operation,
				"attempt", attempts,
				"error", err)
			break
		}

		backoff := p.Backoff(attempt)
		if p.config.MaxElapsedTime > 0 && time.Since(startTime)+backoff > p.config.MaxElapsedTime {
			p.logger.Warn("max elapsed time exceeded",
				"operation", operation,
				"elapsed", time.Since(startTime),
				"attempts", attempts,
				"error", err)
			break
		}

		p.recordBackoff(backoff)
		p.logger.Warn("attempt failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"backoff", backoff,
			"error_type", evalerrors.Classify(err),
			"error", err)
		if p.onRetry != nil {
			p.onRetry(operation, attempts, backoff, err)
		}

		if err := p.sleep(ctx, backoff); err != nil {
			return attempts, fmt.Errorf("%s: %w: %w", operation, errContextCancelledDuringRetry, err)
		}
	}

	p.stats.exhausted.Add(1)
	if p.metrics != nil {
		p.metrics.ObserveExhausted(operation)
	}
	return attempts, &evalerrors.RetryExhaustedError{
		Operation: operation,
		Attempts:  attempts,
		Err:       lastErr,
	}
}

func (p *Policy) observeAttempt(operation string, failed bool) {
	if p.metrics != nil {
		p.metrics.ObserveAttempt(operation, failed)
	}
}

// sleepContext waits with context cancellation to enable graceful shutdown.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
