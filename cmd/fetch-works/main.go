// Package main provides the fetch-works CLI, which harvests every work of one
// institution from OpenAlex into a JSON snapshot.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/helixir/institution-sync/internal/config"
	"github.com/helixir/institution-sync/internal/harvest"
	"github.com/helixir/institution-sync/internal/observability"
	"github.com/helixir/institution-sync/internal/papersources/openalex"
	"github.com/helixir/institution-sync/internal/snapshot"
)

// Version is set at build time via ldflags
var Version = "dev"

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "instsync"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "fetch-works",
		Short: "Harvest an institution's works from OpenAlex",
		Long: `fetch-works pages through the OpenAlex /works endpoint for one institution
(by ROR code) and publication date range, normalizes each work and writes a
JSON snapshot of every record.

Throttled requests (403, 429) are retried on the same cursor with backoff.
Other failures abort the run; records fetched so far are still written and the
command exits with status 1.

Settings come from flags, INSTSYNC_* environment variables (also read from
.env), and config.yaml, in that order of precedence.`,
		Args:          cobra.NoArgs,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}
			logOut := cmd.ErrOrStderr()
			if cfg.Logging.Output == "stdout" {
				logOut = cmd.OutOrStdout()
			}
			return run(cmd.Context(), cfg, logOut)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file (default: ./config.yaml or ./config/config.yaml if present)")
	flags.String("ror", "", "institution ROR code, e.g. 04q2jes40 (default "+config.DefaultROR+")")
	flags.String("email", "", "contact email sent to OpenAlex for the polite pool (required)")
	flags.String("from", "", "first publication date, YYYY-MM-DD (default 2010-01-01)")
	flags.String("to", "", "last publication date, YYYY-MM-DD (default Dec 31 of the current year)")
	flags.String("out", "", "snapshot output path (default institution_data.json)")
	flags.Int("per-page", 0, "results per page, at most 200 (default 50)")
	flags.Int("max-pages", 0, "maximum pages fetched (default 200)")
	flags.String("metrics-file", "", "write Prometheus text-format metrics to this file after the run")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (default info)")
	flags.String("log-format", "", "log format: console, json, pretty (default console)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitConfigError, err)
	})

	return cmd
}

// run performs one harvest. The snapshot is written whether or not the
// harvest aborted; an aborted harvest still returns an error.
func run(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger := observability.NewLoggerTo(logOut, cfg.ObservabilityLogging())
	logger = observability.WithRunContext(logger, uuid.NewString(), cfg.OpenAlex.ROR)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(metricsNamespace, reg)

	client := openalex.New(cfg.OpenAlexClientConfig(), logger)
	harvester := harvest.New(client, cfg.HarvestConfig(), logger, harvest.WithMetrics(metrics))

	logger.Info().
		Str("from", cfg.OpenAlex.FromDate).
		Str("to", cfg.OpenAlex.ToDate).
		Int("per_page", cfg.Paging.PageSize).
		Int("max_pages", cfg.Paging.MaxPages).
		Msg("starting harvest")

	started := time.Now()
	result, runErr := harvester.Run(ctx)

	if err := snapshot.Write(cfg.Output.Path, result.Snapshot); err != nil {
		if runErr != nil {
			logger.Error().Err(runErr).Msg("harvest aborted")
		}
		return withExitCode(ExitError, fmt.Errorf("write snapshot: %w", err))
	}
	logger.Info().
		Int("count", result.Snapshot.Count).
		Str("path", cfg.Output.Path).
		Dur("elapsed", time.Since(started)).
		Msg("snapshot written")

	if cfg.Output.MetricsFile != "" {
		if err := observability.WriteTextfile(cfg.Output.MetricsFile, reg); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Output.MetricsFile).Msg("failed to write metrics file")
		}
	}

	if runErr != nil {
		return withExitCode(ExitError, fmt.Errorf("harvest aborted after %d pages (%d works saved): %w",
			result.Final.Page, result.Snapshot.Count, runErr))
	}
	return nil
}
