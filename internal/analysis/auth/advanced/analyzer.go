// internal/analysis/auth/advanced/analyzer.go

// Package advanced looks past authentication mechanics at how credentials are
// handled: tokens leaking into URLs, CORS and CSP posture, and how often
// tokens are refreshed.
package advanced

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Locations are truncated to this many characters.
const maxLocationLength = 100

// Analyzer is the advanced security analyzer.
type Analyzer struct {
	*core.BaseAnalyzer
}

// NewAnalyzer creates an advanced security analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"advanced_security",
			"Checks token exposure, CORS and CSP configuration and token refresh behaviour.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes its findings to Result.Advanced.
func (a *Analyzer) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	result := Scan(analysisCtx.Entries)
	analysisCtx.Result.Advanced = result

	a.Logger.Debug("Advanced security analysis complete",
		zap.Int("token_exposures", len(result.TokenExposures)),
		zap.Int("cors_issues", len(result.CORSIssues)),
		zap.Int("csp_findings", len(result.CSPFindings)),
		zap.Int("refresh_patterns", len(result.RefreshPatterns)),
	)
	for _, issue := range result.CORSIssues {
		if issue.Severity == schemas.SeverityCritical {
			a.Logger.Warn("Credentialed wildcard CORS policy", zap.Int("entry_index", issue.EntryIndex))
		}
	}
	return nil
}

// Scan runs all four checks over the entries.
func Scan(entries []schemas.Entry) schemas.AdvancedSecurity {
	return schemas.AdvancedSecurity{
		TokenExposures:  tokenExposures(entries),
		CORSIssues:      corsIssues(entries),
		CSPFindings:     cspFindings(entries),
		RefreshPatterns: refreshPatterns(entries),
	}
}
