// File: cmd/auth.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/auth"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/summary"
	"github.com/xkilldash9x/harrier/internal/config"
	"github.com/xkilldash9x/harrier/internal/har"
	"github.com/xkilldash9x/harrier/internal/observability"
	"github.com/xkilldash9x/harrier/internal/reporting"
	"github.com/xkilldash9x/harrier/internal/results"
)

// authOptions holds the per-invocation flags of the auth command that have
// no config key.
type authOptions struct {
	outputPath string
	persist    bool
	noDecode   bool
}

// newAuthCmd creates the `auth` command.
func newAuthCmd(provider storeProvider) *cobra.Command {
	var opts authOptions

	authCmd := &cobra.Command{
		Use:     "auth <archive.har>",
		Aliases: []string{"analyze"},
		Short:   "Analyze the authentication traffic recorded in a HAR archive",
		Long: `Loads a HAR archive (.har, .har.gz or .har.br), detects authentication methods,
sessions, flows, events and tokens, and reports the security issues found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyAuthFlags(cmd, cfg); err != nil {
				return err
			}
			return runAuth(ctx, observability.GetLogger(), cfg, args[0], opts, provider, cmd.OutOrStdout())
		},
	}

	flags := authCmd.Flags()
	flags.StringP("format", "f", reporting.FormatText, "Report format: text, json or sarif. (Overrides config/env)")
	flags.StringVarP(&opts.outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	flags.Bool("strict-json", false, "Parse JSON bodies strictly instead of scanning for string fields.")
	flags.Bool("sequential", false, "Run the analyzers one after another.")
	flags.Bool("findings-only", false, "Omit the full analysis from the report.")
	flags.BoolVar(&opts.persist, "persist", false, "Store the run and its findings in the configured database.")
	flags.BoolVar(&opts.noDecode, "no-decode", false, "Leave encoded and compressed response bodies as recorded.")
	return authCmd
}

// applyAuthFlags layers explicitly set flags over the loaded configuration.
func applyAuthFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		format, err := flags.GetString("format")
		if err != nil {
			return err
		}
		cfg.SetOutputFormat(format)
	}
	if flags.Changed("strict-json") {
		strict, _ := flags.GetBool("strict-json")
		cfg.SetAnalysisStrictJSON(strict)
	}
	if flags.Changed("sequential") {
		sequential, _ := flags.GetBool("sequential")
		cfg.SetAnalysisParallel(!sequential)
	}
	if flags.Changed("findings-only") {
		findingsOnly, _ := flags.GetBool("findings-only")
		cfg.SetOutputFindingsOnly(findingsOnly)
	}
	return nil
}

// runAuth loads one archive, analyzes it, writes the report and optionally
// persists the run.
func runAuth(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	archivePath string,
	opts authOptions,
	provider storeProvider,
	out io.Writer,
) error {
	format := cfg.Output().Format
	if !reporting.IsSupportedFormat(format) {
		return fmt.Errorf("%w: %s", reporting.ErrUnsupportedFormat, format)
	}

	path, err := expandPath(archivePath)
	if err != nil {
		return err
	}
	loader := har.NewLoader(logger, cfg.Loader().DecodeBodies && !opts.noDecode)
	archive, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	entries := archive.Log.Entries

	analysisCfg := cfg.Analysis()
	engine := auth.NewEngine(logger, auth.WithOptions(auth.Options{
		Parallel:      analysisCfg.Parallel,
		StrictJSON:    analysisCfg.StrictJSON,
		SameSiteNotes: analysisCfg.SameSiteNotes,
	}))
	analysis, err := engine.Analyze(ctx, entries)
	if err != nil {
		return fmt.Errorf("analysis of %s aborted: %w", filepath.Base(path), err)
	}

	envelope := buildEnvelope(logger, filepath.Base(path), analysis, entries, cfg.Output().FindingsOnly)

	outputPath := opts.outputPath
	if outputPath == "" {
		outputPath = cfg.Output().Path
	}
	if err := writeReport(logger, envelope, format, outputPath, out); err != nil {
		return err
	}

	if opts.persist {
		return persistRun(ctx, logger, cfg, provider, envelope)
	}
	return nil
}

// buildEnvelope assembles the report envelope of a finished analysis.
func buildEnvelope(logger *zap.Logger, source string, analysis *schemas.AuthAnalysis, entries []schemas.Entry, findingsOnly bool) *schemas.ResultEnvelope {
	now := time.Now().UTC()
	pipeline := results.NewPipeline(nil, logger)

	envelope := &schemas.ResultEnvelope{
		RunID:     analysis.RunID,
		Source:    source,
		Timestamp: now,
		Summary:   summary.Summarize(analysis),
		View:      summary.AggregateFindings(analysis),
		Findings:  pipeline.Findings(analysis, entries, now),
	}
	if !findingsOnly {
		envelope.Analysis = analysis
	}
	return envelope
}

// persistRun stores the envelope through the configured store.
func persistRun(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider storeProvider, envelope *schemas.ResultEnvelope) error {
	runStore, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := runStore.PersistRun(ctx, envelope); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", envelope.RunID, err)
	}
	logger.Info("Analysis run persisted",
		zap.String("run_id", envelope.RunID),
		zap.Int("findings", len(envelope.Findings)),
	)
	return nil
}
