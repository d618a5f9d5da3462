package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedSentinel/internal/catalog"
	"FeedSentinel/internal/domain"
)

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

// urlProber reports the configured item count per URL; unknown URLs have zero items.
type urlProber struct {
	items  map[string]int
	probed []string
}

func (p *urlProber) Probe(_ context.Context, src domain.Source) domain.HealthVerdict {
	p.probed = append(p.probed, src.URL)
	n := p.items[src.URL]
	return domain.HealthVerdict{SourceID: src.ID, URL: src.URL, ItemCount: n, Status: domain.Classify(n, domain.DefaultReliableThreshold)}
}

type countingLimiter struct{ waits int }

func (l *countingLimiter) Wait(context.Context) error {
	l.waits++
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		urls []string
	}{
		{"objects", `[{"name":"A","url":"https://a.example.com/rss"}]`, []string{"https://a.example.com/rss"}},
		{"strings", `["https://a.example.com/rss", "https://b.example.com/feed"]`, []string{"https://a.example.com/rss", "https://b.example.com/feed"}},
		{"prose around", "Here you go:\n```json\n[{\"name\":\"A\",\"url\":\"https://a.example.com/rss\"}]\n```\nEnjoy [1]!", []string{"https://a.example.com/rss"}},
		{"markdown link first", "See [the list](x) below: [\"https://a.example.com/rss\"]", []string{"https://a.example.com/rss"}},
		{"bracket inside string", `[{"name":"A [beta]","url":"https://a.example.com/rss"}]`, []string{"https://a.example.com/rss"}},
		{"numbers only", `[1, 2, 3]`, nil},
		{"unbalanced", `[{"name":"A"`, nil},
		{"no array", `I cannot help with that.`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var urls []string
			for _, c := range parseCandidates(tc.text) {
				urls = append(urls, c.URL)
			}
			assert.Equal(t, tc.urls, urls)
		})
	}
}

func TestDiscoverKeepsOnlyHealthyUpToCount(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{answer: `[
		{"name": "Afar", "url": "https://www.afar.com/feed", "description": "travel stories"},
		{"name": "Broken", "url": "https://broken.example.com/rss"},
		{"name": "Bad", "url": "ftp://files.example.com/rss"},
		{"name": "Afar again", "url": "https://WWW.AFAR.COM/feed/"},
		{"name": "Nomad", "url": "https://nomad.example.com/rss"},
		{"name": "Extra", "url": "https://extra.example.com/rss"}
	]`}
	prober := &urlProber{items: map[string]int{
		"https://www.afar.com/feed":       12,
		"https://broken.example.com/rss":  1,
		"https://nomad.example.com/rss":   4,
		"https://extra.example.com/rss":   9,
	}}
	limiter := &countingLimiter{}

	agent := NewAgent(AgentDeps{
		Generator:      gen,
		Prober:         prober,
		Limiter:        limiter,
		FetchFrequency: 6 * time.Hour,
		Now:            func() time.Time { return fixedNow },
		Profiles: func(c domain.Category) domain.StyleProfile {
			return domain.StyleProfile{Category: c, Description: "destinations and hotels", Audience: "independent travellers"}
		},
	})

	got := agent.Discover(context.Background(), domain.CategoryTravel, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "travel-afar", got[0].ID)
	assert.Equal(t, "travel-nomad", got[1].ID)
	for _, src := range got {
		assert.Equal(t, domain.OriginDiscovery, src.Origin)
		assert.Equal(t, domain.CategoryTravel, src.Category)
		assert.True(t, src.Active)
		assert.Equal(t, fixedNow, src.AddedAt)
	}
	assert.Equal(t, "travel stories", got[0].Metadata["description"])

	assert.Equal(t, []string{"https://www.afar.com/feed", "https://broken.example.com/rss", "https://nomad.example.com/rss"}, prober.probed,
		"invalid and duplicate urls are never probed and probing stops at count")
	assert.Equal(t, 3, limiter.waits)
	assert.Contains(t, gen.prompt, "exactly 2")
	assert.Contains(t, gen.prompt, "independent travellers")
}

func TestDiscoverDeduplicatesIDs(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{answer: `[{"name":"Roam","url":"https://a.example.com/rss"},{"name":"Roam","url":"https://b.example.com/rss"},"https://www.c.example.com/feed"]`}
	prober := &urlProber{items: map[string]int{
		"https://a.example.com/rss":      5,
		"https://b.example.com/rss":      5,
		"https://www.c.example.com/feed": 5,
	}}

	got := NewAgent(AgentDeps{Generator: gen, Prober: prober}).Discover(context.Background(), domain.CategoryFood, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "food-roam", got[0].ID)
	assert.Equal(t, "food-roam-2", got[1].ID)
	assert.Equal(t, "food-c-example-com", got[2].ID)
	assert.Equal(t, "c.example.com", got[2].Name)
}

func TestDiscoverDegradesToEmpty(t *testing.T) {
	t.Parallel()

	prober := &urlProber{items: map[string]int{}}

	got := NewAgent(AgentDeps{Generator: &stubGenerator{err: errors.New("quota exceeded")}, Prober: prober}).
		Discover(context.Background(), domain.CategoryCulture, 2)
	assert.Empty(t, got)

	got = NewAgent(AgentDeps{Generator: &stubGenerator{answer: "Sorry, I can't browse the web."}, Prober: prober}).
		Discover(context.Background(), domain.CategoryCulture, 2)
	assert.Empty(t, got)
	assert.Empty(t, prober.probed)

	got = NewAgent(AgentDeps{Generator: &stubGenerator{answer: `["https://a.example.com"]`}, Prober: prober}).
		Discover(context.Background(), domain.CategoryCulture, 0)
	assert.Empty(t, got)
}

func TestDiscoveredSourcesAppearInCategoryQuery(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{answer: `[{"name":"Slow Roads","url":"https://slowroads.example.com/rss"}]`}
	prober := &urlProber{items: map[string]int{"https://slowroads.example.com/rss": 8}}
	found := NewAgent(AgentDeps{Generator: gen, Prober: prober, Now: func() time.Time { return fixedNow }}).
		Discover(context.Background(), domain.CategoryTravel, 1)
	require.Len(t, found, 1)

	store := catalog.NewMemoryStore()
	mut := catalog.NewMutator(catalog.MutatorDeps{Store: store, Now: func() time.Time { return fixedNow }})
	res, err := mut.Add(context.Background(), found)
	require.NoError(t, err)
	assert.Equal(t, []string{"travel-slow-roads"}, res.Added)

	active, err := catalog.NewRegistry(store).ActiveSources(context.Background(), domain.CategoryTravel)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "https://slowroads.example.com/rss", active[0].URL)
	assert.True(t, strings.HasSuffix(active[0].Notes[0], "added (discovery)"))
}

func TestDiscoverAcrossRunsAvoidsRegisteredIDsAndURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := func() time.Time { return fixedNow }
	store := catalog.NewMemoryStore(domain.Source{
		ID: "travel-slow-roads", Name: "Slow Roads", URL: "https://slowroads.example.com/rss",
		Category: domain.CategoryTravel, Kind: domain.KindFeed, Active: true, Origin: domain.OriginSeed,
	})
	registry := catalog.NewRegistry(store)
	mut := catalog.NewMutator(catalog.MutatorDeps{Store: store, Now: now})
	prober := &urlProber{items: map[string]int{
		"https://yeohaeng.example.com/rss":   6,
		"https://www.gil.example.com/feed":   6,
		"https://slowroads2.example.com/rss": 6,
	}}

	first := NewAgent(AgentDeps{
		Generator: &stubGenerator{answer: `[{"name":"여행 매거진","url":"https://yeohaeng.example.com/rss"}]`},
		Registry:  registry,
		Prober:    prober,
		Now:       now,
	}).Discover(ctx, domain.CategoryTravel, 1)
	require.Len(t, first, 1)
	assert.Equal(t, "travel-yeohaeng-example-com", first[0].ID, "a name without ascii letters falls back to the host")
	res, err := mut.Add(ctx, first)
	require.NoError(t, err)
	require.Len(t, res.Added, 1)

	prober.probed = nil
	second := NewAgent(AgentDeps{
		Generator: &stubGenerator{answer: `[
			{"name":"여행 매거진","url":"https://YEOHAENG.example.com/rss/"},
			{"name":"길 위의 이야기","url":"https://www.gil.example.com/feed"},
			{"name":"Slow Roads","url":"https://slowroads2.example.com/rss"}
		]`},
		Registry: registry,
		Prober:   prober,
		Now:      now,
	}).Discover(ctx, domain.CategoryTravel, 3)
	require.Len(t, second, 2)
	assert.Equal(t, "travel-gil-example-com", second[0].ID)
	assert.Equal(t, "travel-slow-roads-2", second[1].ID, "ids already in the registry are not reused")
	assert.Equal(t, []string{"https://www.gil.example.com/feed", "https://slowroads2.example.com/rss"}, prober.probed,
		"registered urls are never fetched")

	res, err = mut.Add(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"travel-gil-example-com", "travel-slow-roads-2"}, res.Added)
	assert.Empty(t, res.Skipped)
}
