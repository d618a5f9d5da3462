package ports

import (
	"context"

	"FeedSentinel/internal/domain"
)

// CatalogStore persists the source registry. Update runs fn against a fresh snapshot under the
// store's lock and writes the result only when fn reports a change.
type CatalogStore interface {
	Load(ctx context.Context) (domain.Catalog, error)
	Update(ctx context.Context, fn func(*domain.Catalog) (bool, error)) error
}

// SourceCatalog is the read view of the registry used by the pipelines.
type SourceCatalog interface {
	ActiveSources(ctx context.Context, category domain.Category) ([]domain.Source, error)
}

// RegistryReader returns a consistent copy of the whole registry, inactive sources included.
type RegistryReader interface {
	Snapshot(ctx context.Context) (domain.Catalog, error)
}

// SourceMutator applies idempotent changes to the registry.
type SourceMutator interface {
	Deactivate(ctx context.Context, ids []string, reason string) (int, error)
	Add(ctx context.Context, sources []domain.Source) (domain.AddResult, error)
}

// ItemFetcher pulls the current items of a source with the strategy matching its kind.
type ItemFetcher interface {
	Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error)
}

// Prober checks one source and always returns a verdict.
type Prober interface {
	Probe(ctx context.Context, source domain.Source) domain.HealthVerdict
}

// FallbackResolver picks the best healthy backup for a category.
type FallbackResolver interface {
	Resolve(ctx context.Context, category domain.Category) (domain.Source, bool)
}

// Discoverer proposes validated new sources for a category.
type Discoverer interface {
	Discover(ctx context.Context, category domain.Category, count int) []domain.Source
}

// TextGenerator is the generative text service behind source discovery.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContentTransformer rewrites raw feed content in a category's voice.
type ContentTransformer interface {
	Transform(ctx context.Context, req domain.TransformRequest) (domain.TransformedContent, error)
}

// ArticleSink persists finished content records.
type ArticleSink interface {
	KnownLinks(ctx context.Context, links []string) (map[string]bool, error)
	SaveArticle(ctx context.Context, article domain.StoredArticle) (string, error)
}

// VerdictLog records probe outcomes for later triage.
type VerdictLog interface {
	RecordVerdicts(ctx context.Context, runID string, verdicts []domain.HealthVerdict) error
}

// Notifier streams operator digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Limiter spaces out calls to rate limited collaborators.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Schedule(name, spec string, job func(ctx context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
