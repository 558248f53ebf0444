// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/config"
	"github.com/xkilldash9x/harrier/internal/observability"
	"github.com/xkilldash9x/harrier/internal/reporting"
	"github.com/xkilldash9x/harrier/internal/results"
	"github.com/xkilldash9x/harrier/internal/store"
)

// errNoDatabase is returned when persistence is requested without a database URL.
var errNoDatabase = errors.New("database URL is not configured (HARRIER_DATABASE_URL)")

// storeProvider creates the run store. Tests inject a mock instead of a live
// database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the configured database, runs the schema migration when
// auto_migrate is set, and returns the store with a cleanup closing the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error) {
	logger := observability.GetLogger()
	dbCfg := cfg.Database()
	if dbCfg.URL == "" {
		return nil, nil, errNoDatabase
	}

	pool, err := pgxpool.New(ctx, dbCfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if dbCfg.AutoMigrate {
		if err := storeService.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// newReportCmd creates the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Generate a report for a persisted analysis run",
		Long: `Loads the findings of a run stored with 'harrier auth --persist', enriches and
prioritizes them, and writes a report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") {
				format = cfg.Output().Format
			}
			if outputPath == "" {
				outputPath = cfg.Output().Path
			}
			return runReport(ctx, observability.GetLogger(), cfg, args[0], outputPath, format, provider, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatText, "Report format: text, json or sarif.")
	return reportCmd
}

// runReport loads, processes and renders the findings of one stored run.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	runID, outputPath, format string,
	provider storeProvider,
	out io.Writer,
) error {
	if !reporting.IsSupportedFormat(format) {
		return fmt.Errorf("%w: %s", reporting.ErrUnsupportedFormat, format)
	}
	logger.Info("Starting report generation", zap.String("run_id", runID))

	storeService, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	pipeline := results.NewPipeline(storeService, logger)
	report, err := pipeline.ProcessRun(ctx, runID)
	if err != nil {
		logger.Error("Failed to process results", zap.Error(err), zap.String("run_id", runID))
		return fmt.Errorf("failed to process run results: %w", err)
	}

	envelope := &schemas.ResultEnvelope{
		RunID:     runID,
		Source:    "run:" + runID,
		Timestamp: time.Now().UTC(),
		Findings:  report.Findings,
	}
	logger.Info("Processed stored findings",
		zap.Int("total", report.Summary["total"]),
		zap.Int("critical", report.Summary[schemas.SeverityCritical.String()]),
	)
	return writeReport(logger, envelope, format, outputPath, out)
}

// writeReport renders envelope to outputPath, or to out when no path is set.
func writeReport(logger *zap.Logger, envelope *schemas.ResultEnvelope, format, outputPath string, out io.Writer) (err error) {
	var reporter reporting.Reporter
	if outputPath == "" || outputPath == "stdout" {
		reporter, err = reporting.NewForStream(format, out, Version)
	} else {
		var path string
		if path, err = expandPath(outputPath); err != nil {
			return err
		}
		outputPath = path
		reporter, err = reporting.New(format, outputPath, Version)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	if err := reporter.Write(envelope); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}

	if outputPath != "" && outputPath != "stdout" {
		logger.Info("Report successfully written to file", zap.String("path", outputPath), zap.String("format", format))
	}
	return nil
}
