package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedSentinel/internal/config"
	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/infrastructure/catalogfile"
)

// rssServer serves /items/{n} as an RSS feed with n entries and 404 for anything else.
func rssServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/items/") {
			http.NotFound(w, r)
			return
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/items/"))
		var b strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "<item><title>Item %d</title><link>https://example.com/%d</link></item>", i, i)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>%s</channel></rss>`, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedRegistry(t *testing.T, path string, sources ...domain.Source) {
	t.Helper()
	err := catalogfile.NewStore(path, 0).Update(context.Background(), func(cat *domain.Catalog) (bool, error) {
		for _, src := range sources {
			cat.Upsert(src)
		}
		return true, nil
	})
	require.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitPartial, ExitCode(ErrPartial))
	assert.Equal(t, ExitPartial, ExitCode(fmt.Errorf("%w: no healthy fallback", ErrPartial)))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("registry unreadable")))
}

func TestApplicationProbeAndFallback(t *testing.T) {
	t.Parallel()

	srv := rssServer(t)
	registryPath := filepath.Join(t.TempDir(), "sources.yaml")
	seedRegistry(t, registryPath,
		domain.Source{ID: "food-good", Name: "Good", URL: srv.URL + "/items/5", Category: domain.CategoryFood, Kind: domain.KindFeed, Active: true},
		domain.Source{ID: "food-dead", Name: "Dead", URL: srv.URL + "/gone", Category: domain.CategoryFood, Kind: domain.KindFeed, Active: true},
	)

	cfg := config.Config{
		Registry: config.RegistryConfig{Path: registryPath},
		FallbackPool: []config.FallbackConfig{
			{ID: "food-backup", Name: "Backup", URL: srv.URL + "/items/4", Category: "food", Priority: 1},
		},
	}
	application, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx := context.Background()
	verdicts, err := application.Probe(ctx, domain.CategoryFood)
	assert.ErrorIs(t, err, ErrPartial)
	require.Len(t, verdicts, 2)
	assert.Equal(t, domain.StatusHealthy, verdicts[0].Status)
	assert.Equal(t, domain.StatusFailed, verdicts[1].Status)
	assert.Equal(t, http.StatusNotFound, verdicts[1].HTTPStatus)

	res, err := application.Fallback(ctx, domain.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, []string{"food-backup"}, res.Added)

	active, err := application.registry.ActiveSources(ctx, domain.CategoryFood)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, domain.OriginFallback, active[2].Origin)

	_, err = application.Fallback(ctx, domain.CategoryWellness)
	assert.ErrorIs(t, err, ErrPartial)
}

func TestCommandsCheckConfigurationBeforeTouchingAnything(t *testing.T) {
	t.Parallel()

	registryPath := filepath.Join(t.TempDir(), "sources.yaml")
	application, err := New(config.Config{Registry: config.RegistryConfig{Path: registryPath}}, nil)
	require.NoError(t, err)

	_, err = application.Recover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatgpt.apiKey is required")
	assert.Equal(t, ExitFailure, ExitCode(err))

	_, err = application.Ingest(context.Background(), []domain.Category{domain.CategoryFood}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn is required")

	err = application.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatgpt.apiKey is required")
	assert.Contains(t, err.Error(), "database.dsn is required")

	_, statErr := os.Stat(registryPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "the registry is never written")
}

func TestNewRejectsBrokenFallbackPool(t *testing.T) {
	t.Parallel()

	_, err := New(config.Config{FallbackPool: []config.FallbackConfig{{ID: "x", URL: "ftp://nope", Category: "food"}}}, nil)
	assert.ErrorContains(t, err, "fallback pool")
}

func TestProbeAndFallbackLeaveTheDatabaseAlone(t *testing.T) {
	t.Parallel()

	srv := rssServer(t)
	registryPath := filepath.Join(t.TempDir(), "sources.yaml")
	seedRegistry(t, registryPath,
		domain.Source{ID: "food-good", Name: "Good", URL: srv.URL + "/items/5", Category: domain.CategoryFood, Kind: domain.KindFeed, Active: true},
	)

	cfg := config.Config{
		Registry: config.RegistryConfig{Path: registryPath},
		Database: config.DatabaseConfig{DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"},
		FallbackPool: []config.FallbackConfig{
			{ID: "food-backup", Name: "Backup", URL: srv.URL + "/items/4", Category: "food", Priority: 1},
		},
	}
	application, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx := context.Background()
	verdicts, err := application.Probe(ctx, domain.CategoryFood)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)

	res, err := application.Fallback(ctx, domain.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, []string{"food-backup"}, res.Added)

	assert.Nil(t, application.db)
	assert.Nil(t, application.repo)
}
