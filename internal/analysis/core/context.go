// internal/analysis/core/context.go
package core

import (
	"github.com/xkilldash9x/harrier/api/schemas"
	"go.uber.org/zap"
)

// Options are the per-run switches that change detector behaviour.
type Options struct {
	// SameSiteNotes keeps the informational note emitted for every cookie
	// session, since archives never record the SameSite attribute.
	SameSiteNotes bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{SameSiteNotes: true}
}

// AnalysisContext carries one run's input and output. Entries is shared by
// every analyzer and must be treated as read-only.
type AnalysisContext struct {
	Entries []schemas.Entry
	Logger  *zap.Logger
	Fields  FieldFinder
	Options Options

	// Result is populated by the analyzers. Each analyzer owns a disjoint set
	// of fields.
	Result *schemas.AuthAnalysis
}

// NewAnalysisContext builds a context with an empty result. A nil finder
// selects the tolerant scanner.
func NewAnalysisContext(entries []schemas.Entry, logger *zap.Logger, finder FieldFinder, opts Options) *AnalysisContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	if finder == nil {
		finder = ScanFieldFinder{}
	}
	return &AnalysisContext{
		Entries: entries,
		Logger:  logger,
		Fields:  finder,
		Options: opts,
		Result:  NewAuthAnalysis(len(entries)),
	}
}

// NewAuthAnalysis returns an analysis with every collection non-nil, so empty
// runs serialize as empty lists instead of nulls.
func NewAuthAnalysis(entryCount int) *schemas.AuthAnalysis {
	return &schemas.AuthAnalysis{
		EntryCount:    entryCount,
		Methods:       []schemas.AuthMethod{},
		Sessions:      []schemas.AuthSession{},
		Flows:         []schemas.AuthFlow{},
		Events:        []schemas.AuthEvent{},
		SecurityNotes: []schemas.SecurityNote{},
		JWTTokens:     []schemas.JWTToken{},
		JWTIssues:     []schemas.JWTIssue{},
		SAMLFlows:     []schemas.SAMLFlow{},
		SAMLIssues:    []schemas.SAMLIssue{},
		Advanced: schemas.AdvancedSecurity{
			TokenExposures:  []schemas.TokenExposure{},
			CORSIssues:      []schemas.CORSIssue{},
			CSPFindings:     []schemas.CSPFinding{},
			RefreshPatterns: []schemas.TokenRefreshPattern{},
		},
	}
}
