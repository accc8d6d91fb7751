// Package main provides the sjr-to-json CLI, which converts a journal ranking
// export into a normalized title to quartile JSON mapping.
package main

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/helixir/institution-sync/internal/domain"
	"github.com/helixir/institution-sync/internal/observability"
	"github.com/helixir/institution-sync/internal/quartile"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type options struct {
	delimiter string
	sheet     string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "sjr-to-json <input> <output>",
		Short: "Extract a journal title to quartile mapping from a ranking export",
		Long: `sjr-to-json reads a CSV or .xlsx journal ranking export (for example from
SCImago), finds the title and quartile columns by their header names and writes
a JSON object mapping each normalized journal title to Q1, Q2, Q3 or Q4.

Recognized title headers:    Title, Source Title, Journal Title
Recognized quartile headers: SJR Best Quartile, Best Quartile, Quartile`,
		Args:          cobra.ExactArgs(2),
		Version:       Version,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is only useful for argument errors, which cobra reports before RunE.
			cmd.SilenceUsage = true
			return run(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.delimiter, "delimiter", ",", `CSV field delimiter (use ";" for SCImago exports, "tab" for TSV)`)
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet to read from an .xlsx input (default first sheet)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	return cmd
}

func run(cmd *cobra.Command, input, output string, opts options) error {
	logCfg := observability.DefaultLoggingConfig()
	logCfg.Level = opts.logLevel
	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), logCfg)

	delim, err := parseDelimiter(opts.delimiter)
	if err != nil {
		return err
	}

	rows, err := quartile.ReadRows(input, quartile.ReadOptions{Delimiter: delim, Sheet: opts.sheet})
	if err != nil {
		return err
	}
	logger.Debug().Str("input", input).Int("rows", len(rows)).Msg("read input")

	mapping, err := quartile.Extract(rows)
	if errors.Is(err, domain.ErrEmptyInput) {
		return fmt.Errorf("empty input file: %s", input)
	}
	if err != nil {
		return err
	}

	if err := quartile.WriteFile(output, mapping); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d journal->quartile entries to %s\n", len(mapping), output)
	return nil
}

// parseDelimiter accepts a single character, "tab" or `\t`.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
