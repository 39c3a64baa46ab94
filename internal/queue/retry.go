package queue

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultMaxDelay caps the exponential backoff curve.
const DefaultMaxDelay = time.Minute

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next attempt. The zero value retries nothing.
type RetryPolicy struct {
	// MaxRetries is the retry budget: a task is attempted at most
	// MaxRetries+1 times.
	MaxRetries int

	// BackoffBase is the delay before the first retry; subsequent retries
	// double it.
	BackoffBase time.Duration

	// MaxDelay caps the computed delay. Zero means DefaultMaxDelay.
	MaxDelay time.Duration

	// Jitter randomizes each delay over [0, computed] to avoid thundering
	// herds of simultaneous retries.
	Jitter bool

	// IsTransient classifies an error as retryable. Nil means only errors
	// wrapping ErrTransient are retried.
	IsTransient func(error) bool
}

// NewRetryPolicy returns the policy used in production: full jitter and the
// default transient classification.
func NewRetryPolicy(maxRetries int, backoffBase time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		BackoffBase: backoffBase,
		Jitter:      true,
	}
}

// Retryable reports whether err should be retried under this policy.
func (p RetryPolicy) Retryable(err error) bool {
	if p.IsTransient != nil {
		return p.IsTransient(err)
	}
	return errors.Is(err, ErrTransient)
}

// Delay returns the backoff before retry attempt n (1-indexed): base*2^(n-1)
// capped at MaxDelay, drawn uniformly from [0, capped] when Jitter is set.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	d := float64(p.BackoffBase) * math.Pow(2, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	if p.Jitter {
		d = rand.Float64() * d
	}
	return time.Duration(d)
}
