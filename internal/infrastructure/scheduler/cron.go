package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FeedSentinel/internal/ports"
)

// CronScheduler runs named jobs on standard five-field cron expressions (descriptors such as
// @daily and @every are accepted too).
type CronScheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    context.Context
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating expressions in loc.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	adapter := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		parser: parser,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers job under name. Jobs receive a context cancelled by Stop.
func (c *CronScheduler) Schedule(name, spec string, job func(ctx context.Context)) error {
	if job == nil {
		return fmt.Errorf("schedule %s: nil job", name)
	}
	schedule, err := c.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: parse %q: %w", name, spec, err)
	}

	c.cron.Schedule(schedule, cron.FuncJob(func() {
		started := time.Now()
		c.logger.Info("job started", "job", name)
		job(c.ctx)
		c.logger.Info("job finished", "job", name, "duration", time.Since(started).Round(time.Millisecond))
	}))
	c.logger.Info("job scheduled", "job", name, "spec", spec, "next", schedule.Next(time.Now()))
	return nil
}

// Start launches the cron loop in the background. The scheduler stops when ctx is done and
// cannot be restarted afterwards.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.done != nil {
		return nil
	}
	c.started = true
	c.cron.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-c.ctx.Done():
		}
	}()

	return nil
}

// Stop cancels running jobs and waits for them until ctx expires. Every caller waits on the
// same shutdown, whether it was triggered here or by the context given to Start.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	if c.done == nil {
		c.cancel()
		c.done = c.cron.Stop()
	}
	done := c.done
	c.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
