// Package fallback keeps the hand-curated pool of backup sources and resolves replacements
// from it in priority order.
package fallback

import (
	"sort"
	"sync"
	"time"

	"FeedSentinel/internal/domain"
)

// Pool is the static candidate list. Only the tested marks change at runtime.
type Pool struct {
	mu         sync.Mutex
	candidates []domain.FallbackCandidate
}

// NewPool copies the candidates into a pool.
func NewPool(candidates []domain.FallbackCandidate) *Pool {
	return &Pool{candidates: append([]domain.FallbackCandidate(nil), candidates...)}
}

// Candidates returns the category's candidates sorted ascending by priority, then id.
func (p *Pool) Candidates(category domain.Category) []domain.FallbackCandidate {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.FallbackCandidate
	for _, c := range p.candidates {
		if c.Category == category {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Has reports whether the pool holds any candidate for the category.
func (p *Pool) Has(category domain.Category) bool {
	return len(p.Candidates(category)) > 0
}

// MarkTested records that a candidate was probed.
func (p *Pool) MarkTested(id string, at time.Time) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.candidates {
		if p.candidates[i].ID == id {
			testedAt := at
			p.candidates[i].Tested = true
			p.candidates[i].TestedAt = &testedAt
		}
	}
}
