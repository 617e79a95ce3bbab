package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides whether a failed fetch gets another attempt and how
// long to back off first. Jittered exponential backoff; parse failures and
// cancellations are never retried.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy. maxAttempts <= 0 falls back to 3.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   250 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// ShouldRetry reports whether attempt+1 is allowed for this error.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts-1 {
		return false
	}
	// Run cancellation is final; a per-fetch timeout is an ordinary
	// FetchError and stays retryable.
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsRetryable(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
