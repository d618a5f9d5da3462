package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FeedSentinel/internal/catalog"
	"FeedSentinel/internal/domain"
)

var fixedNow = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func feedSource(id string, cat domain.Category) domain.Source {
	return domain.Source{
		ID:       id,
		Name:     id,
		URL:      fmt.Sprintf("https://%s.example.com/rss", id),
		Category: cat,
		Kind:     domain.KindFeed,
		Active:   true,
		Origin:   domain.OriginSeed,
	}
}

func newRegistry(sources ...domain.Source) (*catalog.MemoryStore, *catalog.Registry, *catalog.Mutator) {
	store := catalog.NewMemoryStore(sources...)
	return store, catalog.NewRegistry(store), catalog.NewMutator(catalog.MutatorDeps{Store: store, Now: clock})
}

// scriptedFetcher serves canned items per source id; ids listed in failing return an error.
type scriptedFetcher struct {
	items   map[string][]domain.FetchedItem
	failing map[string]bool
}

func (f *scriptedFetcher) Scan(_ context.Context, src domain.Source) ([]domain.FetchedItem, error) {
	if f.failing[src.ID] {
		return nil, errors.New("connection refused")
	}
	return append([]domain.FetchedItem(nil), f.items[src.ID]...), nil
}

func itemsFor(sourceID string, n int) []domain.FetchedItem {
	out := make([]domain.FetchedItem, 0, n)
	for i := 0; i < n; i++ {
		published := fixedNow.Add(-time.Duration(i) * time.Hour)
		out = append(out, domain.FetchedItem{
			Title:       fmt.Sprintf("%s item %d", sourceID, i),
			RawContent:  "body",
			Link:        fmt.Sprintf("https://%s.example.com/%d", sourceID, i),
			PublishedAt: &published,
		})
	}
	return out
}

type echoTransformer struct {
	mu      sync.Mutex
	failing map[string]bool
	styles  []domain.StyleProfile
}

func (t *echoTransformer) Transform(_ context.Context, req domain.TransformRequest) (domain.TransformedContent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.styles = append(t.styles, req.Style)
	if t.failing[req.Link] {
		return domain.TransformedContent{}, errors.New("model refused")
	}
	return domain.TransformedContent{Title: "Rewritten: " + req.Title, Content: req.Content, Summary: "s"}, nil
}

type memorySink struct {
	mu       sync.Mutex
	known    map[string]bool
	saved    []domain.StoredArticle
	knownErr error
}

func (s *memorySink) KnownLinks(_ context.Context, links []string) (map[string]bool, error) {
	if s.knownErr != nil {
		return nil, s.knownErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, l := range links {
		if s.known[l] {
			out[l] = true
		}
	}
	return out, nil
}

func (s *memorySink) SaveArticle(_ context.Context, a domain.StoredArticle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return fmt.Sprintf("article-%d", len(s.saved)), nil
}

func (s *memorySink) links() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, a := range s.saved {
		out = append(out, a.SourceLink)
	}
	return out
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	return ctx.Err()
}

// tableProber returns canned verdicts per source id; unknown ids are healthy with ten items.
type tableProber struct {
	mu       sync.Mutex
	verdicts map[string]domain.HealthVerdict
	probed   []string
}

func (p *tableProber) Probe(_ context.Context, src domain.Source) domain.HealthVerdict {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, src.ID)
	v, ok := p.verdicts[src.ID]
	if !ok {
		v = domain.HealthVerdict{Status: domain.StatusHealthy, ItemCount: 10}
	}
	v.SourceID = src.ID
	v.Category = src.Category
	v.URL = src.URL
	v.CheckedAt = fixedNow
	return v
}

type stubDiscoverer struct {
	found map[domain.Category][]domain.Source
	calls []string
}

func (d *stubDiscoverer) Discover(_ context.Context, cat domain.Category, count int) []domain.Source {
	d.calls = append(d.calls, fmt.Sprintf("%s:%d", cat, count))
	found := d.found[cat]
	if len(found) > count {
		found = found[:count]
	}
	return found
}

type stubResolver struct {
	winners map[domain.Category]domain.Source
	calls   []domain.Category
}

func (r *stubResolver) Resolve(_ context.Context, cat domain.Category) (domain.Source, bool) {
	r.calls = append(r.calls, cat)
	src, ok := r.winners[cat]
	return src, ok
}

type recordingVerdictLog struct {
	runID    string
	verdicts int
}

func (l *recordingVerdictLog) RecordVerdicts(_ context.Context, runID string, verdicts []domain.HealthVerdict) error {
	l.runID = runID
	l.verdicts += len(verdicts)
	return nil
}

type recordingNotifier struct {
	digests []string
	err     error
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return n.err
}

type brokenCatalog struct{}

func (brokenCatalog) ActiveSources(context.Context, domain.Category) ([]domain.Source, error) {
	return nil, errors.New("registry unreadable")
}
