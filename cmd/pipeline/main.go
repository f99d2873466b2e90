// The paddock command runs the motorsport results pipeline: resumable
// extraction from the Ergast-compatible API, contract validation, and
// relational loading, with run auditing and post-load quality checks.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/paddock-io/paddock/internal/pipeline"
	"github.com/paddock-io/paddock/internal/run"
)

const (
	version = "1.0.0"
	name    = "paddock"
)

func main() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           name,
		Short:         "Motorsport results ingestion pipeline",
		Long:          "Extracts historical race data from an Ergast-compatible API, validates it against schema contracts, and loads it into PostgreSQL.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default "+pipeline.DefaultConfigFile+")")

	root.AddCommand(
		newRunCommand(&configPath),
		newExtractCommand(&configPath),
		newLoadCommand(&configPath),
		newVersionCommand(),
	)

	return root
}

func newRunCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: extract, validate, load",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			return withApp(cfg, logger, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				outcome, err := a.pipeline.Run(ctx, cfg)
				if err != nil {
					return err
				}

				reportOutcome(outcome)

				return nil
			})
		},
	}

	addWindowFlags(cmd)
	addExtractFlags(cmd)
	addLoadFlags(cmd)

	return cmd
}

func newExtractCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract pending units without loading the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			return withApp(cfg, logger, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				summary, err := a.pipeline.Extract(ctx, cfg)
				if err != nil {
					return err
				}

				fmt.Printf("extraction complete: %d fetched, %d reused, %d no-data, %d failed\n",
					summary.Fetched, summary.Reused, summary.NoData, summary.Failed)

				return nil
			})
		},
	}

	addWindowFlags(cmd)
	addExtractFlags(cmd)

	return cmd
}

func newLoadCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Transform and load previously extracted payloads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}

			return withApp(cfg, logger, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				outcome, err := a.pipeline.LoadStored(ctx, cfg)
				if err != nil {
					return err
				}

				reportOutcome(outcome)

				return nil
			})
		},
	}

	addWindowFlags(cmd)
	addLoadFlags(cmd)

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("%s v%s\n", name, version)
		},
	}
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().Int("start-year", 0, "first season to process (inclusive)")
	cmd.Flags().Int("end-year", 0, "last season to process (inclusive)")
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("fast", false, "skip pit stop extraction")
	cmd.Flags().Bool("force", false, "re-fetch units even when checkpointed done")
}

func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("incremental", false, "upsert into existing tables instead of a full refresh")
	cmd.Flags().Bool("no-strict-schema", false, "record contract violations instead of failing on them")
	cmd.Flags().Bool("strict-quality", false, "fail the run when quality checks report problems")
}

// setup loads configuration and applies any flags the user set, which
// take precedence over environment and file values.
func setup(cmd *cobra.Command, configPath string) (*pipeline.Config, *slog.Logger, error) {
	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("start-year") {
		cfg.StartYear, _ = flags.GetInt("start-year")
	}

	if flags.Changed("end-year") {
		cfg.EndYear, _ = flags.GetInt("end-year")
	}

	if flags.Changed("fast") {
		cfg.Fast, _ = flags.GetBool("fast")
	}

	if flags.Changed("force") {
		cfg.Force, _ = flags.GetBool("force")
	}

	if flags.Changed("incremental") {
		cfg.Incremental, _ = flags.GetBool("incremental")
	}

	if flags.Changed("no-strict-schema") {
		noStrict, _ := flags.GetBool("no-strict-schema")
		cfg.StrictSchema = !noStrict
	}

	if flags.Changed("strict-quality") {
		cfg.StrictQuality, _ = flags.GetBool("strict-quality")
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := newLogger()
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func withApp(cfg *pipeline.Config, logger *slog.Logger, fn func(*app) error) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", slog.String("error", err.Error()))
		}
	}()

	return fn(a)
}

func reportOutcome(outcome *pipeline.Outcome) {
	rows := 0
	if outcome.Loaded != nil {
		rows = outcome.Loaded.TotalRows
	}

	fmt.Printf("run %s finished: status=%s rows=%d violations=%d quality_failures=%d\n",
		outcome.RunID, outcome.Status, rows, outcome.Violations, len(outcome.Quality))

	if outcome.Status == run.StatusPartial && outcome.Extraction != nil {
		for _, unit := range outcome.Extraction.FailedUnits {
			fmt.Printf("  failed unit: %s\n", unit.Key())
		}
	}
}
