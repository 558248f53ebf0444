// internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/results/providers"
	"go.uber.org/zap"
)

// Pipeline turns analysis output and stored runs into report-ready findings.
type Pipeline struct {
	store    schemas.Store
	enricher *Enricher
	logger   *zap.Logger
}

// NewPipeline creates a new results processing pipeline. The store may be nil
// when only in-memory processing is needed.
func NewPipeline(store schemas.Store, logger *zap.Logger) *Pipeline {
	return NewPipelineWithProvider(store, providers.NewInMemoryCWEProvider(), logger)
}

// NewPipelineWithProvider is NewPipeline with an explicit CWE source.
func NewPipelineWithProvider(store schemas.Store, cweProvider providers.CWEProvider, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		enricher: NewEnricher(cweProvider, logger),
		logger:   logger.Named("results_pipeline"),
	}
}

// Report represents the processed findings of one stored run.
type Report struct {
	RunID    string            `json:"run_id"`
	Findings []schemas.Finding `json:"findings"`
	Summary  map[string]int    `json:"summary"`
}

// ToJSON serializes the report to a JSON byte slice.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Findings flattens, enriches and prioritizes the findings of a fresh analysis.
func (p *Pipeline) Findings(a *schemas.AuthAnalysis, entries []schemas.Entry, observedAt time.Time) []schemas.Finding {
	findings := Flatten(a, entries, observedAt)
	p.enrich(findings)
	Prioritize(findings)
	p.logger.Debug("Flattened analysis findings", zap.String("run_id", a.RunID), zap.Int("count", len(findings)))
	return findings
}

// ProcessRun retrieves, enriches and prioritizes the findings of a stored run.
func (p *Pipeline) ProcessRun(ctx context.Context, runID string) (*Report, error) {
	if p.store == nil {
		return nil, fmt.Errorf("results pipeline has no store configured")
	}
	p.logger.Info("Starting results processing", zap.String("run_id", runID))

	findings, err := p.store.GetFindingsByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve findings for run %s: %w", runID, err)
	}
	p.logger.Info("Retrieved stored findings", zap.Int("count", len(findings)))

	p.enrich(findings)
	Prioritize(findings)

	report := &Report{
		RunID:    runID,
		Findings: findings,
		Summary:  Summarize(findings),
	}

	p.logger.Info("Results processing complete")
	return report, nil
}

func (p *Pipeline) enrich(findings []schemas.Finding) {
	for i := range findings {
		p.enricher.EnrichFinding(&findings[i])
	}
}

// Summarize counts findings by severity name, plus a "total" key.
func Summarize(findings []schemas.Finding) map[string]int {
	summary := map[string]int{
		"total":                           len(findings),
		schemas.SeverityCritical.String(): 0,
		schemas.SeverityWarning.String():  0,
		schemas.SeverityInfo.String():     0,
	}
	for _, f := range findings {
		summary[f.Severity.String()]++
	}
	return summary
}
