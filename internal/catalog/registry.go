// Package catalog is the source registry: a read view over a CatalogStore plus the
// idempotent mutator used by recovery runs.
package catalog

import (
	"context"
	"fmt"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// Query filters registry reads. Empty category means every category.
type Query struct {
	Category   domain.Category
	ActiveOnly bool
}

// Registry answers read queries against the persisted catalog.
type Registry struct {
	store ports.CatalogStore
}

var (
	_ ports.SourceCatalog  = (*Registry)(nil)
	_ ports.RegistryReader = (*Registry)(nil)
)

// NewRegistry wraps a store.
func NewRegistry(store ports.CatalogStore) *Registry {
	return &Registry{store: store}
}

// Sources returns the sources matching q in catalog order.
func (r *Registry) Sources(ctx context.Context, q Query) ([]domain.Source, error) {
	cat, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat.Filter(q.Category, q.ActiveOnly), nil
}

// ActiveSources returns the active sources of one category.
func (r *Registry) ActiveSources(ctx context.Context, category domain.Category) ([]domain.Source, error) {
	return r.Sources(ctx, Query{Category: category, ActiveOnly: true})
}

// Get returns a single source by id.
func (r *Registry) Get(ctx context.Context, id string) (domain.Source, error) {
	cat, err := r.store.Load(ctx)
	if err != nil {
		return domain.Source{}, fmt.Errorf("load catalog: %w", err)
	}
	src, ok := cat.Get(id)
	if !ok {
		return domain.Source{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	return src, nil
}

// Snapshot returns the whole catalog.
func (r *Registry) Snapshot(ctx context.Context) (domain.Catalog, error) {
	cat, err := r.store.Load(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}
