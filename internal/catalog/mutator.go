package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/metrics"
	"FeedSentinel/internal/ports"
)

// MutatorDeps wires the mutator's collaborators.
type MutatorDeps struct {
	Store   ports.CatalogStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Mutator applies deactivations and additions. Both operations are safe to re-run.
type Mutator struct {
	store   ports.CatalogStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

var _ ports.SourceMutator = (*Mutator)(nil)

// NewMutator constructs the registry mutator.
func NewMutator(deps MutatorDeps) *Mutator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Mutator{store: deps.Store, logger: logger, metrics: deps.Metrics, now: now}
}

// Deactivate flips matching active sources to inactive and annotates them. Unknown and
// already inactive ids are ignored. It returns the number of sources that changed.
func (m *Mutator) Deactivate(ctx context.Context, ids []string, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}

	at := m.now().UTC()
	changed := 0
	err := m.store.Update(ctx, func(cat *domain.Catalog) (bool, error) {
		changed = 0
		for _, id := range ids {
			i := cat.Index(id)
			if i < 0 {
				m.logger.Warn("deactivate unknown source", "source", id)
				continue
			}
			src := &cat.Sources[i]
			if !src.Active {
				continue
			}
			src.Active = false
			deactivatedAt := at
			src.DeactivatedAt = &deactivatedAt
			src.DeactivationReason = reason
			src.Annotate(at, "deactivated: "+reason)
			changed++
			m.logger.Info("source deactivated", "source", src.ID, "category", src.Category, "reason", reason)
		}
		return changed > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("deactivate sources: %w", err)
	}

	m.metrics.ObserveMutation("deactivate", changed)
	return changed, nil
}

// Add inserts new sources. A candidate whose id or URL already exists anywhere in the registry,
// active or not, is skipped on its own; the rest of the batch still goes in.
func (m *Mutator) Add(ctx context.Context, sources []domain.Source) (domain.AddResult, error) {
	var result domain.AddResult
	if len(sources) == 0 {
		return result, nil
	}

	at := m.now().UTC()
	err := m.store.Update(ctx, func(cat *domain.Catalog) (bool, error) {
		result = domain.AddResult{}
		for _, candidate := range sources {
			if reason := m.rejectReason(cat, candidate); reason != "" {
				result.Skipped = append(result.Skipped, domain.SkippedSource{ID: candidate.ID, URL: candidate.URL, Reason: reason})
				m.logger.Info("source add skipped",
					"source", candidate.ID, "category", candidate.Category, "url", candidate.URL, "reason", reason)
				continue
			}

			src := prepareForInsert(candidate, at)
			cat.Upsert(src)
			result.Added = append(result.Added, src.ID)
			m.logger.Info("source added", "source", src.ID, "category", src.Category, "origin", src.Origin, "url", src.URL)
		}
		return len(result.Added) > 0, nil
	})
	if err != nil {
		return domain.AddResult{}, fmt.Errorf("add sources: %w", err)
	}

	m.metrics.ObserveMutation("add", len(result.Added))
	return result, nil
}

func (m *Mutator) rejectReason(cat *domain.Catalog, candidate domain.Source) string {
	switch {
	case strings.TrimSpace(candidate.ID) == "":
		return "missing id"
	case !candidate.Category.Valid():
		return fmt.Sprintf("unknown category %q", candidate.Category)
	}
	if err := domain.ValidateURL(candidate.URL); err != nil {
		return err.Error()
	}
	if existing, ok := cat.Get(candidate.ID); ok {
		return fmt.Sprintf("id already registered (active=%t)", existing.Active)
	}
	if existing, ok := cat.FindURL(candidate.URL); ok {
		return fmt.Sprintf("url already registered as %s (active=%t)", existing.ID, existing.Active)
	}
	return ""
}

func prepareForInsert(candidate domain.Source, at time.Time) domain.Source {
	src := candidate
	src.URL = strings.TrimSpace(src.URL)
	if src.Kind == "" {
		src.Kind = domain.KindFeed
	}
	if src.Origin == "" {
		src.Origin = domain.OriginSeed
	}
	if src.Name == "" {
		src.Name = src.ID
	}
	if src.AddedAt.IsZero() {
		src.AddedAt = at
	}
	src.Active = true
	src.DeactivatedAt = nil
	src.DeactivationReason = ""
	src.Notes = append([]string(nil), candidate.Notes...)
	src.Annotate(at, fmt.Sprintf("added (%s)", src.Origin))
	return src
}
