package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedSentinel/internal/catalog"
	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/fallback"
	"FeedSentinel/internal/metrics"
)

// wellCovered seeds three sources for every category except the skipped ones.
func wellCovered(skip ...domain.Category) []domain.Source {
	skipped := map[domain.Category]bool{}
	for _, c := range skip {
		skipped[c] = true
	}
	var out []domain.Source
	for _, cat := range domain.Categories() {
		if skipped[cat] {
			continue
		}
		for i := 1; i <= 3; i++ {
			out = append(out, feedSource(fmt.Sprintf("%s-seed-%d", cat, i), cat))
		}
	}
	return out
}

func discovered(id string) domain.Source {
	src := feedSource(id, domain.CategoryTravel)
	src.Origin = domain.OriginDiscovery
	return src
}

func TestRecoveryTravelScenario(t *testing.T) {
	t.Parallel()

	seed := append(wellCovered(domain.CategoryTravel),
		feedSource("travel-a", domain.CategoryTravel),
		feedSource("travel-b", domain.CategoryTravel),
	)
	m := metrics.New()
	store, registry, _ := newRegistry(seed...)
	mutator := catalog.NewMutator(catalog.MutatorDeps{Store: store, Metrics: m, Now: clock})

	prober := &tableProber{verdicts: map[string]domain.HealthVerdict{
		"travel-a": {Status: domain.StatusFailed, HTTPStatus: 404, ErrorMessage: "404 Not Found"},
		"travel-b": {Status: domain.StatusFailed},
	}}
	discoverer := &stubDiscoverer{found: map[domain.Category][]domain.Source{
		domain.CategoryTravel: {discovered("travel-afar"), discovered("travel-nomad")},
	}}
	verdictLog := &recordingVerdictLog{}
	notifier := &recordingNotifier{}

	rec := NewRecovery(RecoveryDeps{
		Catalog:    registry,
		Mutator:    mutator,
		Prober:     prober,
		Discoverer: discoverer,
		VerdictLog: verdictLog,
		Notifier:   notifier,
		Metrics:    m,
		Now:        clock,
		NewRunID:   func() string { return "run-travel" },
	})

	report, err := rec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(seed), report.Probed)
	assert.Equal(t, 2, report.StatusCounts[domain.StatusFailed])
	assert.ElementsMatch(t, []string{"travel-a", "travel-b"}, report.Deactivated)
	assert.Equal(t, 0, report.CoverageBefore[domain.CategoryTravel])
	assert.Equal(t, []string{"travel:2"}, discoverer.calls)
	assert.Equal(t, []string{"travel-afar", "travel-nomad"}, report.Added[domain.CategoryTravel])
	assert.Equal(t, 2, report.CoverageAfter[domain.CategoryTravel])
	assert.Equal(t, 3, report.CoverageAfter[domain.CategoryFood])
	assert.Equal(t, []domain.Category{domain.CategoryTravel}, report.UnderCovered())
	assert.Empty(t, report.Errors)
	assert.True(t, report.HasFailures())

	active, err := registry.ActiveSources(context.Background(), domain.CategoryTravel)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, domain.OriginDiscovery, active[0].Origin)

	a, err := registry.Get(context.Background(), "travel-a")
	require.NoError(t, err)
	assert.False(t, a.Active)
	assert.Equal(t, "health check failed: HTTP 404", a.DeactivationReason)
	b, err := registry.Get(context.Background(), "travel-b")
	require.NoError(t, err)
	assert.Equal(t, "health check failed: no items", b.DeactivationReason)

	assert.Equal(t, "run-travel", verdictLog.runID)
	assert.Equal(t, len(seed), verdictLog.verdicts)
	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "travel     0 -> 2  below minimum")
	assert.InDelta(t, 2, testutil.ToFloat64(m.MutationCount("deactivate")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.MutationCount("add")), 0.001)
}

func TestRecoveryFallbackFirstAndDegradedStayActive(t *testing.T) {
	t.Parallel()

	seed := append(wellCovered(domain.CategoryTravel),
		feedSource("travel-a", domain.CategoryTravel),
		feedSource("travel-c", domain.CategoryTravel),
	)
	_, registry, mutator := newRegistry(seed...)

	prober := &tableProber{verdicts: map[string]domain.HealthVerdict{
		"travel-a": {Status: domain.StatusFailed, ErrorMessage: "timeout"},
		"travel-c": {Status: domain.StatusDegraded, ItemCount: 2},
	}}
	fallback := feedSource("travel-cntraveler", domain.CategoryTravel)
	fallback.Origin = domain.OriginFallback
	resolver := &stubResolver{winners: map[domain.Category]domain.Source{domain.CategoryTravel: fallback}}
	discoverer := &stubDiscoverer{found: map[domain.Category][]domain.Source{
		domain.CategoryTravel: {discovered("travel-afar"), discovered("travel-nomad")},
	}}

	rec := NewRecovery(RecoveryDeps{
		Catalog:    registry,
		Mutator:    mutator,
		Prober:     prober,
		Resolver:   resolver,
		Discoverer: discoverer,
		Now:        clock,
	})

	report, err := rec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"travel-a"}, report.Deactivated)
	assert.Equal(t, 0, report.CoverageBefore[domain.CategoryTravel], "degraded sources do not count")
	assert.Equal(t, []domain.Category{domain.CategoryTravel}, resolver.calls)
	assert.Equal(t, []string{"travel:2"}, discoverer.calls)
	assert.Equal(t, []string{"travel-cntraveler", "travel-afar", "travel-nomad"}, report.Added[domain.CategoryTravel])
	assert.Equal(t, 3, report.CoverageAfter[domain.CategoryTravel])
	assert.Empty(t, report.UnderCovered())

	c, err := registry.Get(context.Background(), "travel-c")
	require.NoError(t, err)
	assert.True(t, c.Active)
}

func TestRecoveryRecordsStageErrorsPerCategory(t *testing.T) {
	t.Parallel()

	seed := append(wellCovered(domain.CategoryTravel, domain.CategoryCulture),
		feedSource("travel-a", domain.CategoryTravel),
	)
	_, registry, mutator := newRegistry(seed...)

	prober := &tableProber{verdicts: map[string]domain.HealthVerdict{
		"travel-a": {Status: domain.StatusFailed, HTTPStatus: 410},
	}}
	colliding := discovered("travel-a-mirror")
	colliding.URL = "https://TRAVEL-A.example.com/rss/"
	discoverer := &stubDiscoverer{found: map[domain.Category][]domain.Source{
		domain.CategoryTravel: {colliding},
	}}
	notifier := &recordingNotifier{err: errors.New("telegram down")}

	rec := NewRecovery(RecoveryDeps{
		Catalog:    registry,
		Mutator:    mutator,
		Prober:     prober,
		Discoverer: discoverer,
		Notifier:   notifier,
		Now:        clock,
	})

	report, err := rec.Run(context.Background())
	require.NoError(t, err)

	stages := map[string]domain.Category{}
	for _, e := range report.Errors {
		stages[e.Stage+"/"+string(e.Category)] = e.Category
	}
	assert.Contains(t, stages, "add/travel", "a url collision with the retired source is skipped")
	assert.Contains(t, stages, "discover/culture", "an empty discovery is reported")
	assert.Contains(t, stages, "report/")
	assert.Equal(t, 0, report.CoverageAfter[domain.CategoryTravel])
	assert.ElementsMatch(t, []domain.Category{domain.CategoryTravel, domain.CategoryCulture}, report.UnderCovered())
}

func TestRecoveryIsFatalOnlyWhenRegistryUnreadable(t *testing.T) {
	t.Parallel()

	_, _, mutator := newRegistry()
	rec := NewRecovery(RecoveryDeps{Catalog: brokenCatalog{}, Mutator: mutator, Prober: &tableProber{}})
	_, err := rec.Run(context.Background())
	assert.ErrorContains(t, err, "registry unreadable")

	_, err = NewRecovery(RecoveryDeps{Catalog: brokenCatalog{}, Prober: &tableProber{}}).Run(context.Background())
	assert.Error(t, err)
}

func TestRecoveryRerunIsStable(t *testing.T) {
	t.Parallel()

	_, registry, mutator := newRegistry(wellCovered()...)
	rec := NewRecovery(RecoveryDeps{Catalog: registry, Mutator: mutator, Prober: &tableProber{}, Discoverer: &stubDiscoverer{}})

	for i := 0; i < 2; i++ {
		report, err := rec.Run(context.Background())
		require.NoError(t, err)
		assert.False(t, report.HasFailures())
		assert.Empty(t, report.Deactivated)
		assert.Zero(t, report.AddedCount())
	}
}

func TestProbeAndResolveFallbackCommands(t *testing.T) {
	t.Parallel()

	_, registry, mutator := newRegistry(
		feedSource("food-a", domain.CategoryFood),
		feedSource("travel-a", domain.CategoryTravel),
	)
	prober := &tableProber{}
	fallback := feedSource("food-eater", domain.CategoryFood)
	rec := NewRecovery(RecoveryDeps{
		Catalog:  registry,
		Mutator:  mutator,
		Prober:   prober,
		Resolver: &stubResolver{winners: map[domain.Category]domain.Source{domain.CategoryFood: fallback}},
	})

	verdicts, err := rec.Probe(context.Background(), domain.CategoryFood)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, []string{"food-a"}, prober.probed)

	res, ok, err := rec.ResolveFallback(context.Background(), domain.CategoryFood)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"food-eater"}, res.Added)

	res, ok, err = rec.ResolveFallback(context.Background(), domain.CategoryFood)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, res.Added, "adding the same fallback twice is a no-op")

	_, ok, err = rec.ResolveFallback(context.Background(), domain.CategoryWellness)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoveryFallbackPassesOverRetiredCandidate(t *testing.T) {
	t.Parallel()

	retired := feedSource("travel-cn", domain.CategoryTravel)
	retired.Active = false
	retired.Origin = domain.OriginFallback
	seed := append(wellCovered(domain.CategoryTravel),
		feedSource("travel-a", domain.CategoryTravel),
		feedSource("travel-b", domain.CategoryTravel),
		retired,
	)
	_, registry, mutator := newRegistry(seed...)

	prober := &tableProber{}
	resolver := fallback.NewResolver(fallback.ResolverDeps{
		Pool: fallback.NewPool([]domain.FallbackCandidate{
			{ID: "travel-cn", Name: "CN", URL: retired.URL, Category: domain.CategoryTravel, Priority: 1},
			{ID: "travel-lonely", Name: "Lonely", URL: "https://lonely.example.com/rss", Category: domain.CategoryTravel, Priority: 2},
		}),
		Registry: registry,
		Prober:   prober,
		Now:      clock,
	})
	discoverer := &stubDiscoverer{}

	rec := NewRecovery(RecoveryDeps{
		Catalog:    registry,
		Mutator:    mutator,
		Prober:     prober,
		Resolver:   resolver,
		Discoverer: discoverer,
		Now:        clock,
	})

	for run := 0; run < 2; run++ {
		report, err := rec.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Errors, "run %d", run)
		if run == 0 {
			assert.Equal(t, 2, report.CoverageBefore[domain.CategoryTravel])
			assert.Equal(t, []string{"travel-lonely"}, report.Added[domain.CategoryTravel])
			assert.Equal(t, 3, report.CoverageAfter[domain.CategoryTravel])
		} else {
			assert.Equal(t, 3, report.CoverageBefore[domain.CategoryTravel])
			assert.Zero(t, report.AddedCount())
		}
	}
	assert.Empty(t, discoverer.calls)
	assert.NotContains(t, prober.probed, "travel-cn")

	cn, err := registry.Get(context.Background(), "travel-cn")
	require.NoError(t, err)
	assert.False(t, cn.Active, "a retired source stays retired")
}

func TestRecoveryRejectedFallbackLeavesDeficitToDiscovery(t *testing.T) {
	t.Parallel()

	seed := append(wellCovered(domain.CategoryTravel),
		feedSource("travel-a", domain.CategoryTravel),
		feedSource("travel-b", domain.CategoryTravel),
	)
	_, registry, mutator := newRegistry(seed...)

	mirror := feedSource("travel-a-mirror", domain.CategoryTravel)
	mirror.URL = "https://travel-a.example.com/rss"
	mirror.Origin = domain.OriginFallback
	resolver := &stubResolver{winners: map[domain.Category]domain.Source{domain.CategoryTravel: mirror}}
	discoverer := &stubDiscoverer{found: map[domain.Category][]domain.Source{
		domain.CategoryTravel: {discovered("travel-nomad")},
	}}

	rec := NewRecovery(RecoveryDeps{
		Catalog:    registry,
		Mutator:    mutator,
		Prober:     &tableProber{},
		Resolver:   resolver,
		Discoverer: discoverer,
		Now:        clock,
	})

	report, err := rec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"travel:1"}, discoverer.calls, "the skipped fallback does not count toward the deficit")
	assert.Equal(t, []string{"travel-nomad"}, report.Added[domain.CategoryTravel])
	assert.Equal(t, 3, report.CoverageAfter[domain.CategoryTravel])
	require.Len(t, report.Errors, 1)
	assert.Equal(t, domain.StageAdd, report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Message, "travel-a-mirror")
}
