// Package ratelimit holds the delay policies injected into probing, discovery and ingestion.
package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Interval spaces calls by at least the configured interval. Callers wait before every call:
// an idle limiter lets the next call through at once, so only consecutive calls are delayed.
// A non-positive interval disables waiting.
type Interval struct {
	limiter *rate.Limiter
}

// NewInterval builds an interval limiter.
func NewInterval(interval time.Duration) *Interval {
	if interval <= 0 {
		return &Interval{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Interval{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (i *Interval) Wait(ctx context.Context) error {
	if i == nil || i.limiter == nil {
		return nil
	}
	return i.limiter.Wait(ctx)
}

// PerHost keeps one interval limiter per remote host.
type PerHost struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	interval time.Duration
}

// NewPerHost returns nil for a non-positive interval; a nil PerHost never waits.
func NewPerHost(interval time.Duration) *PerHost {
	if interval <= 0 {
		return nil
	}
	return &PerHost{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// WaitForHost blocks until the host of rawURL may be contacted again.
func (h *PerHost) WaitForHost(ctx context.Context, rawURL string) error {
	if h == nil {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}

	return h.limiterFor(parsed.Host).Wait(ctx)
}

func (h *PerHost) limiterFor(host string) *rate.Limiter {
	h.mu.RLock()
	limiter, ok := h.limiters[host]
	h.mu.RUnlock()
	if ok {
		return limiter
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(h.interval), 1)
	h.limiters[host] = limiter
	return limiter
}
