package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the wait after failed attempt a (zero-indexed):
// InitialInterval * Multiplier^a, capped at MaxInterval when one is set.
// With jitter enabled the result is drawn uniformly from [0, backoff].
func (p *Policy) Backoff(attempt int) time.Duration {
	return ExponentialBackoff(attempt, p.config.InitialInterval, p.config.Multiplier,
		p.config.MaxInterval, p.config.UseJitter)
}

// ExponentialBackoff computes base * multiplier^attempt. A multiplier below
// 1 is treated as 2, the classic doubling schedule. maxInterval of 0 leaves
// the result uncapped; overflow saturates at math.MaxInt64.
func ExponentialBackoff(attempt int, base time.Duration, multiplier float64,
	maxInterval time.Duration, jitter bool,
) time.Duration {
	if attempt < 0 || base <= 0 {
		return 0
	}
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	raw := float64(base) * math.Pow(multiplier, float64(attempt))
	backoff := time.Duration(math.MaxInt64)
	if raw < float64(math.MaxInt64) {
		backoff = time.Duration(raw)
	}
	if maxInterval > 0 && backoff > maxInterval {
		backoff = maxInterval
	}

	if jitter {
		// Full jitter: random between 0 and calculated backoff.
		n := int64(backoff)
		if n < math.MaxInt64 {
			n++
		}
		return time.Duration(rand.Int64N(n)) // #nosec G404 -- non-cryptographic jitter is appropriate here
	}
	return backoff
}
