package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/metrics"
	"FeedSentinel/internal/ports"
)

const defaultDiscoveryBatch = 2

// RecoveryDeps wires the collaborators of a recovery run. Resolver, Discoverer, VerdictLog and
// Notifier are optional.
type RecoveryDeps struct {
	Catalog        ports.SourceCatalog
	Mutator        ports.SourceMutator
	Prober         ports.Prober
	Resolver       ports.FallbackResolver
	Discoverer     ports.Discoverer
	VerdictLog     ports.VerdictLog
	Notifier       ports.Notifier
	MinCoverage    int
	DiscoveryBatch int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
	NewRunID       func() string
}

// Recovery probes the registry, retires failed sources and refills thin categories.
type Recovery struct {
	catalog     ports.SourceCatalog
	mutator     ports.SourceMutator
	prober      ports.Prober
	resolver    ports.FallbackResolver
	discoverer  ports.Discoverer
	verdictLog  ports.VerdictLog
	notifier    ports.Notifier
	minCoverage int
	batch       int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newRunID    func() string
}

// NewRecovery constructs the orchestrator.
func NewRecovery(deps RecoveryDeps) *Recovery {
	r := &Recovery{
		catalog:     deps.Catalog,
		mutator:     deps.Mutator,
		prober:      deps.Prober,
		resolver:    deps.Resolver,
		discoverer:  deps.Discoverer,
		verdictLog:  deps.VerdictLog,
		notifier:    deps.Notifier,
		minCoverage: deps.MinCoverage,
		batch:       deps.DiscoveryBatch,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Now,
		newRunID:    deps.NewRunID,
	}
	if r.minCoverage <= 0 {
		r.minCoverage = domain.DefaultReliableThreshold
	}
	if r.batch <= 0 {
		r.batch = defaultDiscoveryBatch
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	return r
}

// Probe checks every active source of the given categories (all when none are given) in
// registry order. It never mutates the registry.
func (r *Recovery) Probe(ctx context.Context, categories ...domain.Category) ([]domain.HealthVerdict, error) {
	if r.catalog == nil || r.prober == nil {
		return nil, errors.New("probe: recovery is missing a collaborator")
	}
	if len(categories) == 0 {
		categories = domain.Categories()
	}

	var verdicts []domain.HealthVerdict
	for _, cat := range categories {
		sources, err := r.catalog.ActiveSources(ctx, cat)
		if err != nil {
			return nil, fmt.Errorf("load %s sources: %w", cat, err)
		}
		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return verdicts, fmt.Errorf("probe interrupted: %w", err)
			}
			verdicts = append(verdicts, r.prober.Probe(ctx, src))
		}
	}
	return verdicts, nil
}

// ResolveFallback adds the best healthy fallback candidate of a category to the registry.
// ok is false when no candidate probed healthy.
func (r *Recovery) ResolveFallback(ctx context.Context, category domain.Category) (domain.AddResult, bool, error) {
	if r.resolver == nil || r.mutator == nil {
		return domain.AddResult{}, false, errors.New("fallback: recovery is missing a collaborator")
	}
	src, ok := r.resolver.Resolve(ctx, category)
	if !ok {
		return domain.AddResult{}, false, nil
	}
	res, err := r.mutator.Add(ctx, []domain.Source{src})
	if err != nil {
		return res, true, fmt.Errorf("add fallback %s: %w", src.ID, err)
	}
	return res, true, nil
}

// Run executes probe, deactivate, coverage, refill and report in that order. The returned error
// is set only when the run could not start or was interrupted; everything else lands in the
// report's stage errors.
func (r *Recovery) Run(ctx context.Context) (domain.RecoveryReport, error) {
	report := domain.RecoveryReport{
		RunID:          r.newRunID(),
		StartedAt:      r.now().UTC(),
		StatusCounts:   map[domain.HealthStatus]int{},
		CoverageBefore: map[domain.Category]int{},
		CoverageAfter:  map[domain.Category]int{},
		Added:          map[domain.Category][]string{},
		MinCoverage:    r.minCoverage,
	}
	if r.mutator == nil {
		return report, errors.New("recover: registry mutator is required")
	}
	logger := r.logger.With("run", report.RunID)

	verdicts, err := r.Probe(ctx)
	if err != nil {
		return report, fmt.Errorf("recover: %w", err)
	}
	report.Probed = len(verdicts)

	healthy := make(map[string]bool)
	for _, v := range verdicts {
		report.StatusCounts[v.Status]++
		if v.Healthy() {
			healthy[v.SourceID] = true
		}
	}
	logger.Info("probe stage finished",
		"probed", report.Probed,
		"healthy", report.StatusCounts[domain.StatusHealthy],
		"degraded", report.StatusCounts[domain.StatusDegraded],
		"failed", report.StatusCounts[domain.StatusFailed],
	)

	if r.verdictLog != nil && len(verdicts) > 0 {
		if err := r.verdictLog.RecordVerdicts(ctx, report.RunID, verdicts); err != nil {
			report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageProbe, Message: "verdict log: " + err.Error()})
			logger.Warn("verdict log write failed", "error", err)
		}
	}

	r.deactivateFailed(ctx, logger, verdicts, &report)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("recover interrupted: %w", err)
	}

	for _, cat := range domain.Categories() {
		sources, err := r.catalog.ActiveSources(ctx, cat)
		if err != nil {
			report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageCoverage, Category: cat, Message: err.Error()})
			logger.Warn("coverage read failed", "category", cat, "error", err)
			continue
		}
		n := 0
		for _, src := range sources {
			if healthy[src.ID] {
				n++
			}
		}
		report.CoverageBefore[cat] = n
		report.CoverageAfter[cat] = n
	}

	for _, cat := range domain.Categories() {
		coverage, known := report.CoverageBefore[cat]
		if !known || coverage >= r.minCoverage {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("recover interrupted: %w", err)
		}
		r.refill(ctx, logger.With("category", cat), cat, coverage, &report)
	}

	report.FinishedAt = r.now().UTC()
	r.publish(ctx, logger, &report)
	return report, nil
}

// deactivateFailed retires failed sources, one mutation per distinct reason.
func (r *Recovery) deactivateFailed(ctx context.Context, logger *slog.Logger, verdicts []domain.HealthVerdict, report *domain.RecoveryReport) {
	byReason := make(map[string][]string)
	categories := make(map[string]domain.Category)
	for _, v := range verdicts {
		if v.Status != domain.StatusFailed {
			continue
		}
		reason := v.Reason()
		byReason[reason] = append(byReason[reason], v.SourceID)
		categories[v.SourceID] = v.Category
	}

	reasons := make([]string, 0, len(byReason))
	for reason := range byReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	for _, reason := range reasons {
		ids := byReason[reason]
		if _, err := r.mutator.Deactivate(ctx, ids, reason); err != nil {
			for _, id := range ids {
				report.Errors = append(report.Errors, domain.StageError{
					Stage: domain.StageDeactivate, Category: categories[id], Message: fmt.Sprintf("%s: %v", id, err),
				})
			}
			logger.Warn("deactivation failed", "sources", ids, "reason", reason, "error", err)
			continue
		}
		report.Deactivated = append(report.Deactivated, ids...)
		logger.Info("sources deactivated", "sources", ids, "reason", reason)
	}
}

// refill tops up an under-covered category: one fallback, then discovery for what is left.
// Only sources the registry actually accepted count toward the deficit.
func (r *Recovery) refill(ctx context.Context, logger *slog.Logger, cat domain.Category, coverage int, report *domain.RecoveryReport) {
	deficit := r.minCoverage - coverage
	logger.Info("category under-covered", "coverage", coverage, "min", r.minCoverage, "deficit", deficit)

	added := 0
	if r.resolver != nil {
		if src, ok := r.resolver.Resolve(ctx, cat); ok {
			added += r.addSources(ctx, logger, cat, []domain.Source{src}, report)
		} else {
			logger.Info("no healthy fallback candidate")
		}
	}

	if remaining := deficit - added; remaining > 0 && r.discoverer != nil {
		found := r.discoverer.Discover(ctx, cat, min(remaining, r.batch))
		if len(found) == 0 {
			report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageDiscover, Category: cat, Message: "no validated candidates"})
		}
		added += r.addSources(ctx, logger, cat, found, report)
	}

	if added > 0 {
		report.CoverageAfter[cat] = coverage + added
		logger.Info("category refilled", "added", added, "coverage", report.CoverageAfter[cat])
	}
}

// addSources inserts candidates and records skips as stage errors. It returns how many went in.
func (r *Recovery) addSources(ctx context.Context, logger *slog.Logger, cat domain.Category, candidates []domain.Source, report *domain.RecoveryReport) int {
	if len(candidates) == 0 {
		return 0
	}

	res, err := r.mutator.Add(ctx, candidates)
	if err != nil {
		report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageAdd, Category: cat, Message: err.Error()})
		logger.Warn("adding sources failed", "error", err)
		return 0
	}
	for _, s := range res.Skipped {
		report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageAdd, Category: cat, Message: fmt.Sprintf("%s: %s", s.ID, s.Reason)})
	}
	if len(res.Added) > 0 {
		report.Added[cat] = append(report.Added[cat], res.Added...)
		logger.Info("sources added", "sources", res.Added)
	}
	return len(res.Added)
}

func (r *Recovery) publish(ctx context.Context, logger *slog.Logger, report *domain.RecoveryReport) {
	for cat, n := range report.CoverageAfter {
		r.metrics.SetCoverage(string(cat), n)
	}

	outcome := "ok"
	if report.HasFailures() {
		outcome = "partial"
	}
	r.metrics.ObserveRun("recover", outcome)

	logger.Info("recovery finished",
		"outcome", outcome,
		"deactivated", len(report.Deactivated),
		"added", report.AddedCount(),
		"under_covered", report.UnderCovered(),
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)

	if r.notifier == nil {
		return
	}
	if err := r.notifier.PublishDigest(ctx, FormatRecoveryReport(*report)); err != nil {
		report.Errors = append(report.Errors, domain.StageError{Stage: domain.StageReport, Message: err.Error()})
		logger.Warn("report notification failed", "error", err)
	}
}
