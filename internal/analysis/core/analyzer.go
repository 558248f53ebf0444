// internal/analysis/core/analyzer.go
package core

import (
	"context"

	"go.uber.org/zap"
)

// AnalyzerType distinguishes detectors that read only the archive from those
// that build on the output of other detectors.
type AnalyzerType string

const (
	// TypePassive analyzers only inspect the recorded transactions.
	TypePassive AnalyzerType = "PASSIVE"
	// TypeDerived analyzers read results published by passive analyzers, so
	// they must run after them.
	TypeDerived AnalyzerType = "DERIVED"
)

// Analyzer is the contract every auth detector implements. An analyzer reads
// AnalysisContext.Entries and writes only its own fields of
// AnalysisContext.Result, which lets passive analyzers run concurrently.
type Analyzer interface {
	Name() string
	Description() string
	Type() AnalyzerType
	Analyze(ctx context.Context, analysisCtx *AnalysisContext) error
}

// BaseAnalyzer provides the name, description and type plumbing of the
// Analyzer interface. It is meant to be embedded in concrete detectors.
type BaseAnalyzer struct {
	name         string
	description  string
	analyzerType AnalyzerType
	Logger       *zap.Logger // Exposed for use in specific analyzer implementations.
}

// NewBaseAnalyzer creates a BaseAnalyzer with a logger named after the analyzer.
func NewBaseAnalyzer(name, description string, analyzerType AnalyzerType, logger *zap.Logger) *BaseAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAnalyzer{
		name:         name,
		description:  description,
		analyzerType: analyzerType,
		Logger:       logger.Named(name),
	}
}

// Name returns the analyzer's name.
func (b *BaseAnalyzer) Name() string {
	return b.name
}

// Description returns the analyzer's description.
func (b *BaseAnalyzer) Description() string {
	return b.description
}

// Type returns the analyzer's type (PASSIVE or DERIVED).
func (b *BaseAnalyzer) Type() AnalyzerType {
	return b.analyzerType
}
