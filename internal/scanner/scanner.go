package scanner

import (
	"context"
	"fmt"
	"net/http"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// DefaultUserAgent mimics a desktop browser; several feed hosts reject library default agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36 FeedSentinel/1.0"

// Scanner captures a single fetch strategy (feed, api, scrape).
type Scanner interface {
	Kind() domain.SourceKind
	Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error)
}

// StatusError reports a non-2xx response from a source.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s returned %s", e.URL, status)
}

// Registry keeps a mapping from source kinds to their implementations.
type Registry struct {
	scanners map[domain.SourceKind]Scanner
}

var _ ports.ItemFetcher = (*Registry)(nil)

// NewRegistry builds a registry with the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[domain.SourceKind]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns a scanner by kind or an error if it is absent. Empty kind means feed.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	if kind == "" {
		kind = domain.KindFeed
	}
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}

// Scan resolves the source's strategy and runs it.
func (r *Registry) Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error) {
	strategy, err := r.Resolve(source.Kind)
	if err != nil {
		return nil, err
	}
	return strategy.Scan(ctx, source)
}
