package retry

import (
	"sync/atomic"
	"time"
)

// retryStats provides thread-safe retry counters using atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64 // Every invocation of an operation
	successfulFirstAttempts atomic.Int64 // Operations that succeeded immediately
	successfulRetries       atomic.Int64 // Operations that succeeded after retry
	exhausted               atomic.Int64 // Operations that failed terminally
	maxBackoff              atomic.Int64 // Longest backoff in nanoseconds
}

// Stats is a snapshot of a Policy's activity.
type Stats struct {
	TotalAttempts           int64         `json:"total_attempts"`
	SuccessfulFirstAttempts int64         `json:"successful_first_attempts"`
	SuccessfulRetries       int64         `json:"successful_retries"`
	Exhausted               int64         `json:"exhausted"`
	AverageAttempts         float64       `json:"average_attempts"`
	MaxBackoff              time.Duration `json:"max_backoff"`
}

// recordBackoff keeps the maximum backoff seen.
func (p *Policy) recordBackoff(backoff time.Duration) {
	nanos := backoff.Nanoseconds()
	for {
		current := p.stats.maxBackoff.Load()
		if nanos <= current {
			return
		}
		if p.stats.maxBackoff.CompareAndSwap(current, nanos) {
			return
		}
	}
}

// Stats returns a snapshot of the policy's counters.
func (p *Policy) Stats() Stats {
	total := p.stats.totalAttempts.Load()
	first := p.stats.successfulFirstAttempts.Load()
	retried := p.stats.successfulRetries.Load()
	exhausted := p.stats.exhausted.Load()

	avg := 1.0
	if ops := first + retried + exhausted; ops > 0 {
		avg = float64(total) / float64(ops)
	}

	return Stats{
		TotalAttempts:           total,
		SuccessfulFirstAttempts: first,
		SuccessfulRetries:       retried,
		Exhausted:               exhausted,
		AverageAttempts:         avg,
		MaxBackoff:              time.Duration(p.stats.maxBackoff.Load()),
	}
}
