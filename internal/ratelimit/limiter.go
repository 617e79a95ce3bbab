// Package ratelimit paces outbound fetches per source. Scraped registries
// have low tolerance for rapid-fire requests, so every source gets a
// configured minimum delay between fetches rather than a hard-coded one.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per source.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	intervals map[string]time.Duration
	fallback  time.Duration
}

// New builds a Limiter. intervals maps source name to the minimum delay
// between that source's fetches; sources not listed use fallback. A zero or
// negative interval means unpaced.
func New(intervals map[string]time.Duration, fallback time.Duration) *Limiter {
	cp := make(map[string]time.Duration, len(intervals))
	for k, v := range intervals {
		cp[k] = v
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		intervals: cp,
		fallback:  fallback,
	}
}

// Wait blocks until the source's next fetch is due, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	l.mu.Lock()
	lim, ok := l.limiters[source]
	if !ok {
		interval, found := l.intervals[source]
		if !found {
			interval = l.fallback
		}
		limit := rate.Inf
		if interval > 0 {
			limit = rate.Every(interval)
		}
		lim = rate.NewLimiter(limit, 1)
		l.limiters[source] = lim
	}
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", source, err)
	}
	return nil
}
