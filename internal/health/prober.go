// Package health classifies sources as healthy, degraded or failed.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/metrics"
	"FeedSentinel/internal/ports"
	"FeedSentinel/internal/ratelimit"
	"FeedSentinel/internal/scanner"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// ProberDeps wires the prober's collaborators.
type ProberDeps struct {
	Scanners          *scanner.Registry
	HostLimiter       *ratelimit.PerHost
	ReliableItemCount int
	Timeout           time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

// Prober fetches a source once and classifies the result. It never retries.
type Prober struct {
	scanners    *scanner.Registry
	hostLimiter *ratelimit.PerHost
	reliable    int
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

var _ ports.Prober = (*Prober)(nil)

// NewProber constructs a prober with defaults for zero values.
func NewProber(deps ProberDeps) *Prober {
	p := &Prober{
		scanners:    deps.Scanners,
		hostLimiter: deps.HostLimiter,
		reliable:    deps.ReliableItemCount,
		timeout:     deps.Timeout,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Now,
	}
	if p.reliable <= 0 {
		p.reliable = domain.DefaultReliableThreshold
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Probe returns a verdict for the source. Every failure mode, including a panicking strategy,
// is captured in the verdict.
func (p *Prober) Probe(ctx context.Context, source domain.Source) (verdict domain.HealthVerdict) {
	started := p.now()
	verdict = domain.HealthVerdict{
		SourceID: source.ID,
		Category: source.Category,
		URL:      source.URL,
	}

	defer func() {
		if r := recover(); r != nil {
			verdict.Status = domain.StatusFailed
			verdict.ItemCount = 0
			verdict.ErrorMessage = fmt.Sprintf("probe panic: %v", r)
		}
		verdict.CheckedAt = p.now().UTC()
		verdict.Latency = verdict.CheckedAt.Sub(started.UTC())
		p.record(verdict)
	}()

	if p.scanners == nil {
		verdict.Status = domain.StatusFailed
		verdict.ErrorMessage = "no scanners configured"
		return verdict
	}

	if err := p.hostLimiter.WaitForHost(ctx, source.URL); err != nil {
		verdict.Status = domain.StatusFailed
		verdict.ErrorMessage = fmt.Sprintf("rate limit: %v", err)
		return verdict
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.scanners.Scan(probeCtx, source)
	if err != nil {
		verdict.Status = domain.StatusFailed
		verdict.ErrorMessage = describe(probeCtx, err)
		var statusErr *scanner.StatusError
		if errors.As(err, &statusErr) {
			verdict.HTTPStatus = statusErr.StatusCode
		}
		return verdict
	}

	verdict.ItemCount = len(items)
	verdict.Status = domain.Classify(len(items), p.reliable)
	return verdict
}

func (p *Prober) record(v domain.HealthVerdict) {
	p.metrics.ObserveProbe(string(v.Category), string(v.Status))

	attrs := []any{
		"source", v.SourceID,
		"category", v.Category,
		"status", v.Status,
		"items", v.ItemCount,
		"latency_ms", v.Latency.Milliseconds(),
	}
	if v.HTTPStatus != 0 {
		attrs = append(attrs, "http_status", v.HTTPStatus)
	}
	if v.ErrorMessage != "" {
		attrs = append(attrs, "error", v.ErrorMessage)
	}

	if v.Status == domain.StatusHealthy {
		p.logger.Debug("probe finished", attrs...)
		return
	}
	p.logger.Warn("probe finished", attrs...)
}

func describe(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
