// Package ratelimit implements a token bucket limiter keyed by request host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/replay-heatmap/internal/metrics"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained rate per host; <= 0 disables limiting.
	RPS   float64
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    burst,
	}
}

// Enabled reports whether Wait can ever block.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit != rate.Inf
}

// Wait blocks until a token is available for rawURL's host or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if !l.Enabled() {
		return nil
	}
	host := hostOf(rawURL)

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
