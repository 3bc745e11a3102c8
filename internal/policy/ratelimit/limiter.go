// Package ratelimit implements the politeness throttle applied before every fetch:
// a per-host token bucket followed by a randomized pause.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/metrics"
)

// Config holds throttle configuration. A zero RPS disables the token bucket;
// a zero MaxDelay disables the random pause.
type Config struct {
	RPS      float64
	Burst    int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Limiter manages per-host rate limits and the random inter-request delay.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	minDelay time.Duration
	maxDelay time.Duration
	jitter   func(n int64) int64
}

var _ crawler.Throttle = (*Limiter)(nil)

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
	minDelay, maxDelay := cfg.MinDelay, cfg.MaxDelay
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   rand.Int64N,
	}
}

// Wait blocks until the host of url may be fetched again, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, url string) error {
	start := time.Now()
	if err := l.limiterFor(crawler.HostOf(url)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := l.delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("politeness delay: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleWait(waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	if host == "" {
		host = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func (l *Limiter) delay() time.Duration {
	if l.maxDelay <= 0 {
		return 0
	}
	span := int64(l.maxDelay - l.minDelay)
	if span <= 0 {
		return l.minDelay
	}
	return l.minDelay + time.Duration(l.jitter(span+1))
}
