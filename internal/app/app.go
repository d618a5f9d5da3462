package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"FeedSentinel/internal/catalog"
	"FeedSentinel/internal/config"
	"FeedSentinel/internal/discovery"
	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/fallback"
	"FeedSentinel/internal/health"
	"FeedSentinel/internal/infrastructure/catalogfile"
	"FeedSentinel/internal/infrastructure/llm"
	"FeedSentinel/internal/infrastructure/ml"
	"FeedSentinel/internal/infrastructure/parser"
	"FeedSentinel/internal/infrastructure/scheduler"
	"FeedSentinel/internal/infrastructure/storage"
	"FeedSentinel/internal/infrastructure/telegram"
	"FeedSentinel/internal/logging"
	"FeedSentinel/internal/metrics"
	"FeedSentinel/internal/ports"
	"FeedSentinel/internal/ratelimit"
	"FeedSentinel/internal/scanner"
	"FeedSentinel/internal/usecase"
)

// ErrPartial marks a command that ran to completion but recorded failures.
var ErrPartial = errors.New("completed with failures")

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *catalog.Registry
	mutator  *catalog.Mutator
	fetcher  *scanner.Registry
	prober   *health.Prober
	resolver *fallback.Resolver
	chat     *llm.ChatGPTClient
	db       *sql.DB
	repo     *storage.PostgresRepository
}

// New builds the application graph. Nothing touches the network or the database until a
// command runs.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	candidates, err := cfg.FallbackCandidates()
	if err != nil {
		return nil, fmt.Errorf("fallback pool: %w", err)
	}

	m := metrics.New()
	store := catalogfile.NewStore(cfg.Registry.Path, cfg.Registry.LockTimeout)
	fetcher := scanner.NewRegistry(
		parser.NewFeedScanner(nil, cfg.Probe.UserAgent),
		parser.NewHTMLScanner(nil, cfg.Probe.UserAgent),
		parser.NewAPIScanner(nil, cfg.Probe.UserAgent),
	)

	prober := health.NewProber(health.ProberDeps{
		Scanners:          fetcher,
		HostLimiter:       ratelimit.NewPerHost(cfg.Probe.HostInterval),
		ReliableItemCount: cfg.Probe.ReliableItemCount,
		Timeout:           cfg.Probe.Timeout,
		Logger:            baseLogger.With("component", "prober"),
		Metrics:           m,
	})

	registry := catalog.NewRegistry(store)
	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		metrics:  m,
		registry: registry,
		mutator: catalog.NewMutator(catalog.MutatorDeps{
			Store:   store,
			Logger:  baseLogger.With("component", "registry"),
			Metrics: m,
		}),
		fetcher: fetcher,
		prober:  prober,
		resolver: fallback.NewResolver(fallback.ResolverDeps{
			Pool:           fallback.NewPool(candidates),
			Registry:       registry,
			Prober:         prober,
			Limiter:        ratelimit.NewInterval(cfg.Recovery.FallbackDelay),
			FetchFrequency: cfg.Recovery.FetchFrequency,
			Logger:         baseLogger.With("component", "fallback"),
		}),
	}
	if cfg.ChatGPT.Configured() {
		a.chat = llm.NewChatGPTClient(cfg.ChatGPT, baseLogger.With("component", "chatgpt"))
	}
	return a, nil
}

// Close releases the database connection, if one was opened.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db, a.repo = nil, nil
	return err
}

// Metrics exposes the collectors served on /metrics.
func (a *Application) Metrics() *metrics.Metrics {
	return a.metrics
}

// Recover runs one probe, deactivate, refill and report cycle.
func (a *Application) Recover(ctx context.Context) (domain.RecoveryReport, error) {
	if err := a.cfg.RequireDiscovery(); err != nil {
		return domain.RecoveryReport{}, fmt.Errorf("recover: %w", err)
	}

	report, err := a.recovery(ctx, true).Run(ctx)
	if err != nil {
		return report, err
	}
	if report.HasFailures() {
		return report, ErrPartial
	}
	return report, nil
}

// Ingest runs the ingestion pipeline for each category in turn.
func (a *Application) Ingest(ctx context.Context, categories []domain.Category, maxItems int) ([]domain.IngestResult, error) {
	if err := a.cfg.RequireIngestion(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	pipeline := a.pipeline()
	results := make([]domain.IngestResult, 0, len(categories))
	partial := false
	for _, cat := range categories {
		res, err := pipeline.Ingest(ctx, cat, maxItems)
		if err != nil {
			return results, fmt.Errorf("ingest %s: %w", cat, err)
		}
		results = append(results, res)
		partial = partial || res.HasFailures()
	}
	if partial {
		return results, ErrPartial
	}
	return results, nil
}

// Probe checks the active sources of the given categories without changing the registry.
func (a *Application) Probe(ctx context.Context, categories ...domain.Category) ([]domain.HealthVerdict, error) {
	verdicts, err := a.recovery(ctx, false).Probe(ctx, categories...)
	if err != nil {
		return verdicts, err
	}
	for _, v := range verdicts {
		if v.Status == domain.StatusFailed {
			return verdicts, ErrPartial
		}
	}
	return verdicts, nil
}

// Fallback resolves and adds the best healthy backup source of a category.
func (a *Application) Fallback(ctx context.Context, category domain.Category) (domain.AddResult, error) {
	res, ok, err := a.recovery(ctx, false).ResolveFallback(ctx, category)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, fmt.Errorf("%w: no healthy fallback candidate for %s", ErrPartial, category)
	}
	if len(res.Skipped) > 0 {
		return res, ErrPartial
	}
	return res, nil
}

// Serve runs the scheduled recovery and ingestion jobs and the metrics endpoint until ctx is
// cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := errors.Join(a.cfg.RequireDiscovery(), a.cfg.RequireIngestion()); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	jobs := usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:       scheduler.NewCronScheduler(a.cfg.Scheduler.Location(), a.logger.With("component", "cron")),
		Recovery:     a.recovery(ctx, true),
		Pipeline:     a.pipeline(),
		RecoveryCron: a.cfg.Scheduler.RecoveryCron,
		IngestCron:   a.cfg.Scheduler.IngestCron,
		Logger:       a.logger.With("component", "scheduler"),
	})
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	a.logger.Info("serving",
		"metrics_addr", a.cfg.Metrics.Addr,
		"recovery_cron", a.cfg.Scheduler.RecoveryCron,
		"ingest_cron", a.cfg.Scheduler.IngestCron,
		"timezone", a.cfg.Scheduler.Location().String(),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			runErr = fmt.Errorf("metrics server: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics server shutdown", "error", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", "error", err)
	}
	a.logger.Info("stopped")
	return runErr
}

func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// recovery assembles the recovery use case. With withVerdictLog the verdict log is attached
// when a database is configured and reachable; an unreachable database only costs the log.
func (a *Application) recovery(ctx context.Context, withVerdictLog bool) *usecase.Recovery {
	deps := usecase.RecoveryDeps{
		Catalog:        a.registry,
		Mutator:        a.mutator,
		Prober:         a.prober,
		Resolver:       a.resolver,
		MinCoverage:    a.cfg.Recovery.MinCoverage,
		DiscoveryBatch: a.cfg.Recovery.DiscoveryBatch,
		Logger:         a.logger.With("component", "recovery"),
		Metrics:        a.metrics,
	}
	if a.chat != nil {
		deps.Discoverer = discovery.NewAgent(discovery.AgentDeps{
			Generator:      a.chat,
			Registry:       a.registry,
			Prober:         a.prober,
			Limiter:        ratelimit.NewInterval(a.cfg.Recovery.DiscoveryDelay),
			Profiles:       a.cfg.Profile,
			FetchFrequency: a.cfg.Recovery.FetchFrequency,
			Logger:         a.logger.With("component", "discovery"),
		})
	}
	if withVerdictLog && a.cfg.Database.DSN != "" {
		if err := a.openStorage(ctx); err != nil {
			a.logger.Warn("verdict log disabled", "error", err)
		} else {
			deps.VerdictLog = a.repo
		}
	}
	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		deps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}
	return usecase.NewRecovery(deps)
}

func (a *Application) pipeline() *usecase.Pipeline {
	return usecase.NewPipeline(usecase.PipelineDeps{
		Catalog:              a.registry,
		Fetcher:              a.fetcher,
		Transformer:          a.transformer(),
		Sink:                 a.repo,
		Limiter:              ratelimit.NewInterval(a.cfg.Ingest.ItemDelay),
		Profiles:             a.cfg.Profile,
		PerSourceWindow:      a.cfg.Ingest.PerSourceWindow,
		DefaultMaxItems:      a.cfg.Ingest.MaxItems,
		MaxConcurrentFetches: a.cfg.Ingest.MaxConcurrentFetches,
		Logger:               a.logger.With("component", "pipeline"),
		Metrics:              a.metrics,
	})
}

func (a *Application) transformer() ports.ContentTransformer {
	if a.cfg.UsesTransformerService() {
		return ml.NewClient(a.cfg.Transformer.Endpoint, a.cfg.Transformer.APIKey)
	}
	if a.chat == nil {
		return nil
	}
	return a.chat
}

func (a *Application) openStorage(ctx context.Context) error {
	if a.repo != nil {
		return nil
	}
	db, err := storage.Open(ctx, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}
	a.db, a.repo = db, repo
	return nil
}
