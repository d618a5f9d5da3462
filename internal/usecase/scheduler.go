package usecase

import (
	"context"
	"log/slog"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

// SchedulerDeps wires the cron driver with the recovery and ingestion use cases.
type SchedulerDeps struct {
	Driver       ports.Scheduler
	Recovery     *Recovery
	Pipeline     *Pipeline
	RecoveryCron string
	IngestCron   string
	Logger       *slog.Logger
}

// Scheduler registers the recurring recovery and ingestion jobs.
type Scheduler struct {
	driver       ports.Scheduler
	recovery     *Recovery
	pipeline     *Pipeline
	recoveryCron string
	ingestCron   string
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		driver:       deps.Driver,
		recovery:     deps.Recovery,
		pipeline:     deps.Pipeline,
		recoveryCron: deps.RecoveryCron,
		ingestCron:   deps.IngestCron,
		logger:       deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Start registers the jobs that have both a use case and a cron expression, then starts the
// driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	if s.recovery != nil && s.recoveryCron != "" {
		if err := s.driver.Schedule("recover", s.recoveryCron, s.runRecovery); err != nil {
			return err
		}
	}
	if s.pipeline != nil && s.ingestCron != "" {
		if err := s.driver.Schedule("ingest", s.ingestCron, s.runIngest); err != nil {
			return err
		}
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) runRecovery(ctx context.Context) {
	if _, err := s.recovery.Run(ctx); err != nil {
		s.logger.Error("scheduled recovery failed", "error", err)
		s.recovery.metrics.ObserveRun("recover", "error")
	}
}

// runIngest ingests every category in turn; one category failing does not stop the others.
func (s *Scheduler) runIngest(ctx context.Context) {
	outcome := "ok"
	for _, cat := range domain.Categories() {
		if ctx.Err() != nil {
			outcome = "error"
			break
		}
		res, err := s.pipeline.Ingest(ctx, cat, 0)
		if err != nil {
			outcome = "error"
			s.logger.Error("scheduled ingest failed", "category", cat, "error", err)
			continue
		}
		if res.HasFailures() && outcome == "ok" {
			outcome = "partial"
		}
	}
	s.pipeline.metrics.ObserveRun("ingest", outcome)
}
