// internal/analysis/auth/engine.go

// Package auth runs the authentication analyzers over an archive and
// assembles their output into one AuthAnalysis.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/advanced"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/events"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/flows"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/jwt"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/methods"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/notes"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/saml"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/sessions"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Options control how the engine runs.
type Options struct {
	// Parallel runs the passive analyzers concurrently.
	Parallel bool
	// StrictJSON selects the gjson field finder over the tolerant scanner.
	StrictJSON bool
	// SameSiteNotes keeps the SameSite note on every cookie session.
	SameSiteNotes bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{Parallel: true, SameSiteNotes: true}
}

// Engine runs the passive analyzers, then the derived ones that read their
// output. An Engine holds no per-run state and may be reused.
type Engine struct {
	logger  *zap.Logger
	opts    Options
	passive []core.Analyzer
	derived []core.Analyzer
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions replaces the default options.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithAnalyzers replaces the default analyzer set.
func WithAnalyzers(passive, derived []core.Analyzer) Option {
	return func(e *Engine) {
		e.passive = passive
		e.derived = derived
	}
}

// NewEngine creates an engine with the full analyzer set.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth_engine")

	e := &Engine{
		logger: logger,
		opts:   DefaultOptions(),
		passive: []core.Analyzer{
			methods.NewDetector(logger),
			sessions.NewTracker(logger),
			jwt.NewAnalyzer(logger),
			flows.NewDetector(logger),
			saml.NewDetector(logger),
			events.NewDetector(logger),
			advanced.NewAnalyzer(logger),
		},
		derived: []core.Analyzer{
			notes.NewAnalyzer(logger),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze runs every analyzer over entries. Content problems never produce an
// error; the only failure is ctx being done before the run completes. The
// entries are not modified.
func (e *Engine) Analyze(ctx context.Context, entries []schemas.Entry) (*schemas.AuthAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	var finder core.FieldFinder = core.ScanFieldFinder{}
	if e.opts.StrictJSON {
		finder = core.StrictFieldFinder{}
	}
	analysisCtx := core.NewAnalysisContext(entries, logger, finder, core.Options{
		SameSiteNotes: e.opts.SameSiteNotes,
	})
	analysisCtx.Result.RunID = runID

	if err := e.runPassive(ctx, analysisCtx); err != nil {
		return nil, err
	}
	for _, a := range e.derived {
		if err := runOne(ctx, a, analysisCtx); err != nil {
			return nil, err
		}
	}

	result := analysisCtx.Result
	logger.Info("Authentication analysis complete",
		zap.Int("entries", len(entries)),
		zap.Int("methods", len(result.Methods)),
		zap.Int("sessions", len(result.Sessions)),
		zap.Int("flows", len(result.Flows)+len(result.SAMLFlows)),
		zap.Int("events", len(result.Events)),
		zap.Int("notes", len(result.SecurityNotes)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// runPassive fans the passive analyzers out. Each writes a disjoint set of
// result fields, so they share the context without locking.
func (e *Engine) runPassive(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	if !e.opts.Parallel {
		for _, a := range e.passive {
			if err := runOne(ctx, a, analysisCtx); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range e.passive {
		a := a
		g.Go(func() error {
			return runOne(gctx, a, analysisCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// errgroup cancels gctx on return; report cancellation of the caller only.
	return ctx.Err()
}

func runOne(ctx context.Context, a core.Analyzer, analysisCtx *core.AnalysisContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	analysisCtx.Logger.Debug("Running analyzer", zap.String("analyzer", a.Name()), zap.String("type", string(a.Type())))
	if err := a.Analyze(ctx, analysisCtx); err != nil {
		return fmt.Errorf("analyzer '%s' failed: %w", a.Name(), err)
	}
	return nil
}
