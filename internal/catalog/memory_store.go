package catalog

import (
	"context"
	"sync"
	"time"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// MemoryStore keeps the catalog in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	catalog domain.Catalog
	now     func() time.Time
}

var _ ports.CatalogStore = (*MemoryStore)(nil)

// NewMemoryStore seeds the store with the given sources.
func NewMemoryStore(sources ...domain.Source) *MemoryStore {
	return &MemoryStore{
		catalog: domain.Catalog{Sources: append([]domain.Source(nil), sources...)},
		now:     time.Now,
	}
}

// Load returns a copy of the current catalog.
func (m *MemoryStore) Load(ctx context.Context) (domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return domain.Catalog{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog.Clone(), nil
}

// Update applies fn to a copy and commits it when fn reports a change.
func (m *MemoryStore) Update(ctx context.Context, fn func(*domain.Catalog) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.catalog.Clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}
	next.Version = m.catalog.Version + 1
	next.UpdatedAt = m.now().UTC()
	m.catalog = next
	return nil
}
