package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/metrics"
	"FeedSentinel/internal/ports"
)

const (
	defaultPerSourceWindow      = 5
	defaultMaxItems             = 10
	defaultMaxConcurrentFetches = 4
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Catalog              ports.SourceCatalog
	Fetcher              ports.ItemFetcher
	Transformer          ports.ContentTransformer
	Sink                 ports.ArticleSink
	Limiter              ports.Limiter
	Profiles             func(domain.Category) domain.StyleProfile
	PerSourceWindow      int
	DefaultMaxItems      int
	MaxConcurrentFetches int
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
	Now                  func() time.Time
}

// Pipeline implements the fetch, transform and persist workflow.
type Pipeline struct {
	catalog     ports.SourceCatalog
	fetcher     ports.ItemFetcher
	transformer ports.ContentTransformer
	sink        ports.ArticleSink
	limiter     ports.Limiter
	profiles    func(domain.Category) domain.StyleProfile
	window      int
	maxItems    int
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewPipeline constructs the ingestion component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		catalog:     deps.Catalog,
		fetcher:     deps.Fetcher,
		transformer: deps.Transformer,
		sink:        deps.Sink,
		limiter:     deps.Limiter,
		profiles:    deps.Profiles,
		window:      deps.PerSourceWindow,
		maxItems:    deps.DefaultMaxItems,
		concurrency: deps.MaxConcurrentFetches,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Now,
	}
	if p.window <= 0 {
		p.window = defaultPerSourceWindow
	}
	if p.maxItems <= 0 {
		p.maxItems = defaultMaxItems
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultMaxConcurrentFetches
	}
	if p.profiles == nil {
		p.profiles = func(c domain.Category) domain.StyleProfile { return domain.StyleProfile{Category: c} }
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Ingest fetches the newest items of every active source in the category, rewrites them and
// stores them as published articles. maxItems <= 0 uses the configured default. Failing
// sources and failing items are counted, never fatal; only an unreadable registry is.
func (p *Pipeline) Ingest(ctx context.Context, category domain.Category, maxItems int) (domain.IngestResult, error) {
	result := domain.IngestResult{Category: category}
	if p.catalog == nil || p.fetcher == nil || p.transformer == nil || p.sink == nil {
		return result, errors.New("ingest: pipeline is missing a collaborator")
	}
	if maxItems <= 0 {
		maxItems = p.maxItems
	}

	sources, err := p.catalog.ActiveSources(ctx, category)
	if err != nil {
		return result, fmt.Errorf("load %s sources: %w", category, err)
	}
	result.Sources = len(sources)
	if len(sources) == 0 {
		p.logger.Warn("no active sources", "category", category)
		return result, nil
	}

	batches, failures := p.fetchAll(ctx, sources)
	result.FetchFailures = failures

	items := flatten(batches)
	result.Fetched = len(items)

	items, skipped := p.dropKnown(ctx, category, items)
	result.SkippedKnown = skipped

	if len(items) > maxItems {
		items = items[:maxItems]
	}

	style := p.profiles(category)
	for _, item := range items {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return result, fmt.Errorf("ingest %s interrupted: %w", category, err)
			}
		}

		id, err := p.process(ctx, item, style)
		if err != nil {
			result.Failed++
			p.metrics.ObserveItem(string(category), "failed")
			p.logger.Warn("item failed", "category", category, "source", item.SourceID, "link", item.Link, "error", err)
			continue
		}
		result.Succeeded++
		result.StoredIDs = append(result.StoredIDs, id)
		p.metrics.ObserveItem(string(category), "stored")
	}

	p.logger.Info("ingest finished",
		"category", category,
		"sources", result.Sources,
		"fetch_failures", result.FetchFailures,
		"fetched", result.Fetched,
		"skipped_known", result.SkippedKnown,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// fetchAll scans every source concurrently. A failing source contributes nothing and is
// counted; the others are unaffected.
func (p *Pipeline) fetchAll(ctx context.Context, sources []domain.Source) ([][]domain.FetchedItem, int) {
	batches := make([][]domain.FetchedItem, len(sources))
	failed := make([]bool, len(sources))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			items, err := p.fetcher.Scan(ctx, src)
			if err != nil {
				failed[i] = true
				p.logger.Warn("source fetch failed", "category", src.Category, "source", src.ID, "error", err)
				return nil
			}
			for j := range items {
				if items[j].SourceID == "" {
					items[j].SourceID = src.ID
				}
				if items[j].Category == "" {
					items[j].Category = src.Category
				}
			}
			batches[i] = newestFirst(items, p.window)
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	return batches, failures
}

// dropKnown removes items without a link, repeated links and links the sink already stores.
func (p *Pipeline) dropKnown(ctx context.Context, category domain.Category, items []domain.FetchedItem) ([]domain.FetchedItem, int) {
	links := make([]string, 0, len(items))
	for _, it := range items {
		links = append(links, it.Link)
	}

	known, err := p.sink.KnownLinks(ctx, links)
	if err != nil {
		p.logger.Warn("known links lookup failed, ingesting without it", "category", category, "error", err)
		known = map[string]bool{}
	}

	seen := make(map[string]bool, len(items))
	out := make([]domain.FetchedItem, 0, len(items))
	skipped := 0
	for _, it := range items {
		if it.Link == "" || seen[it.Link] || known[it.Link] {
			skipped++
			continue
		}
		seen[it.Link] = true
		out = append(out, it)
	}
	if skipped > 0 {
		p.metrics.ObserveItem(string(category), "skipped")
	}
	return out, skipped
}

func (p *Pipeline) process(ctx context.Context, item domain.FetchedItem, style domain.StyleProfile) (string, error) {
	rewritten, err := p.transformer.Transform(ctx, domain.TransformRequest{
		Title:   item.Title,
		Content: item.RawContent,
		Link:    item.Link,
		Style:   style,
	})
	if err != nil {
		return "", fmt.Errorf("transform: %w", err)
	}

	id, err := p.sink.SaveArticle(ctx, domain.StoredArticle{
		Title:       rewritten.Title,
		Body:        rewritten.Content,
		Summary:     rewritten.Summary,
		Category:    item.Category,
		SourceID:    item.SourceID,
		SourceLink:  item.Link,
		ImageURL:    item.ImageURL,
		PublishedAt: item.PublishedAt,
		Status:      domain.ArticlePublished,
		CreatedAt:   p.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}
	return id, nil
}

// newestFirst orders items by publication date, undated items last in feed order, and keeps
// the first window of them.
func newestFirst(items []domain.FetchedItem, window int) []domain.FetchedItem {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(items) > window {
		items = items[:window]
	}
	return items
}

func flatten(batches [][]domain.FetchedItem) []domain.FetchedItem {
	var out []domain.FetchedItem
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
