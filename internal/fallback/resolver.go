package fallback

import (
	"context"
	"log/slog"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// ResolverDeps wires the resolver's collaborators.
type ResolverDeps struct {
	Pool           *Pool
	Registry       ports.RegistryReader
	Prober         ports.Prober
	Limiter        ports.Limiter
	FetchFrequency time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Resolver walks a category's candidates and returns the first healthy one.
type Resolver struct {
	pool      *Pool
	registry  ports.RegistryReader
	prober    ports.Prober
	limiter   ports.Limiter
	frequency time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.FallbackResolver = (*Resolver)(nil)

// NewResolver constructs a resolver.
func NewResolver(deps ResolverDeps) *Resolver {
	r := &Resolver{
		pool:      deps.Pool,
		registry:  deps.Registry,
		prober:    deps.Prober,
		limiter:   deps.Limiter,
		frequency: deps.FetchFrequency,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns a promoted source for the first candidate whose fresh probe is healthy.
// Candidates whose id or URL is already in the registry, active or retired, are never offered.
// Degraded candidates are skipped: a replacement has to be better than barely working.
func (r *Resolver) Resolve(ctx context.Context, category domain.Category) (domain.Source, bool) {
	candidates, err := r.unregistered(ctx, r.pool.Candidates(category))
	if err != nil {
		r.logger.Warn("fallback resolution needs the registry", "category", category, "error", err)
		return domain.Source{}, false
	}
	if len(candidates) == 0 || r.prober == nil {
		r.logger.Info("no fallback candidates", "category", category)
		return domain.Source{}, false
	}

	for _, candidate := range candidates {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.logger.Warn("fallback resolution interrupted", "category", category, "error", err)
				return domain.Source{}, false
			}
		}

		verdict := r.prober.Probe(ctx, domain.Source{
			ID:       candidate.ID,
			Name:     candidate.Name,
			URL:      candidate.URL,
			Category: candidate.Category,
			Kind:     domain.KindFeed,
		})
		r.pool.MarkTested(candidate.ID, verdict.CheckedAt)

		if verdict.Healthy() {
			r.logger.Info("fallback resolved",
				"category", category, "candidate", candidate.ID, "priority", candidate.Priority, "items", verdict.ItemCount)
			return candidate.Promote(r.now().UTC(), r.frequency), true
		}

		r.logger.Info("fallback candidate rejected",
			"category", category, "candidate", candidate.ID, "status", verdict.Status, "reason", verdict.Reason())
	}

	r.logger.Warn("every fallback candidate failed", "category", category, "candidates", len(candidates))
	return domain.Source{}, false
}

// unregistered drops candidates that would collide with an existing registry entry.
func (r *Resolver) unregistered(ctx context.Context, candidates []domain.FallbackCandidate) ([]domain.FallbackCandidate, error) {
	if r.registry == nil || len(candidates) == 0 {
		return candidates, nil
	}
	snapshot, err := r.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := candidates[:0]
	for _, c := range candidates {
		if existing, ok := snapshot.Get(c.ID); ok {
			r.logger.Debug("fallback candidate already registered", "candidate", c.ID, "active", existing.Active)
			continue
		}
		if existing, ok := snapshot.FindURL(c.URL); ok {
			r.logger.Debug("fallback candidate url already registered", "candidate", c.ID, "source", existing.ID, "active", existing.Active)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
