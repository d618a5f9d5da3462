package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"FeedSentinel/internal/config"
	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/logging"
	"FeedSentinel/internal/usecase"
)

// Exit statuses of the CLI.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitFailure
	}
}

// cli carries state shared by the subcommands: flags of the root command and the lazily built
// application.
type cli struct {
	configPath string
	logLevel   string
	logger     *slog.Logger
	build      func(cfg config.Config, logger *slog.Logger) (runner, error)
}

// runner is what the subcommands need from the application.
type runner interface {
	Recover(ctx context.Context) (domain.RecoveryReport, error)
	Ingest(ctx context.Context, categories []domain.Category, maxItems int) ([]domain.IngestResult, error)
	Probe(ctx context.Context, categories ...domain.Category) ([]domain.HealthVerdict, error)
	Fallback(ctx context.Context, category domain.Category) (domain.AddResult, error)
	Serve(ctx context.Context) error
	Close() error
}

// NewRootCmd creates the feedsentinel command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{build: func(cfg config.Config, logger *slog.Logger) (runner, error) {
		return New(cfg, logger)
	}}
	return c.rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedsentinel",
		Short:         "Keeps a curated registry of content feeds healthy and ingests their items",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to the YAML configuration (defaults to $FEEDSENTINEL_CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(c.recoverCmd(), c.ingestCmd(), c.probeCmd(), c.fallbackCmd(), c.serveCmd())
	return root
}

// withApp loads configuration, builds the application and runs fn against it.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app runner) error) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	logger := c.logger
	if logger == nil {
		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	app, err := c.build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("close application", "error", cerr)
		}
	}()

	return fn(cmd.Context(), app)
}

func (c *cli) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Probe every source, retire failed ones and refill thin categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app runner) error {
				report, err := app.Recover(ctx)
				if report.RunID != "" {
					fmt.Fprint(cmd.OutOrStdout(), usecase.FormatRecoveryReport(report))
				}
				return err
			})
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		category string
		all      bool
		maxItems int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, rewrite and store the newest items of a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := selectCategories(category, all)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app runner) error {
				results, err := app.Ingest(ctx, categories, maxItems)
				for _, res := range results {
					fmt.Fprintln(cmd.OutOrStdout(), usecase.FormatIngestResult(res))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Category to ingest")
	cmd.Flags().BoolVar(&all, "all", false, "Ingest every category")
	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum items to store (defaults to ingest.maxItems)")
	cmd.MarkFlagsMutuallyExclusive("category", "all")
	cmd.MarkFlagsOneRequired("category", "all")
	return cmd
}

func (c *cli) probeCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print a health table of the active sources without changing the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := selectCategories(category, category == "")
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app runner) error {
				verdicts, err := app.Probe(ctx, categories...)
				if len(verdicts) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), usecase.FormatVerdicts(verdicts))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only probe this category")
	return cmd
}

func (c *cli) fallbackCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Add the best healthy backup source of a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, app runner) error {
				res, err := app.Fallback(ctx, cat)
				out := cmd.OutOrStdout()
				for _, id := range res.Added {
					fmt.Fprintf(out, "added %s\n", id)
				}
				for _, s := range res.Skipped {
					fmt.Fprintf(out, "skipped %s: %s\n", s.ID, s.Reason)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Category to refill")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled recovery and ingestion jobs and expose /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app runner) error {
				return app.Serve(ctx)
			})
		},
	}
}

// selectCategories returns every category when all is set, otherwise the named one.
func selectCategories(name string, all bool) ([]domain.Category, error) {
	if all {
		return domain.Categories(), nil
	}
	cat, err := domain.ParseCategory(name)
	if err != nil {
		return nil, err
	}
	return []domain.Category{cat}, nil
}
