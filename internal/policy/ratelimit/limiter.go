// Package ratelimit throttles outbound API calls with one token bucket per
// request class.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/a11y-tracker/internal/metrics"
)

// Limiter hands out tokens per class, creating buckets on first use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perClass rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// PerMinute is the sustained rate for each class; zero or less disables
	// throttling.
	PerMinute float64
	Burst     int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerMinute / 60)
	if cfg.PerMinute <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		perClass: r,
		burst:    burst,
	}
}

// Wait blocks until class has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, class string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[class]
	if !ok {
		limiter = rate.NewLimiter(l.perClass, l.burst)
		l.limiters[class] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(class, waited)
	}
	return nil
}
