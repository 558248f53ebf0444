// internal/results/enrich.go
package results

import (
	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/results/providers"
	"go.uber.org/zap"
)

// minDescriptionLength is the length below which a description is replaced
// with the CWE text.
const minDescriptionLength = 20

// Enricher is responsible for enhancing findings with additional context.
type Enricher struct {
	cweProvider providers.CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates a new Enricher instance.
func NewEnricher(cweProvider providers.CWEProvider, logger *zap.Logger) *Enricher {
	return &Enricher{
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// EnrichFinding fills gaps in a finding from its first CWE.
func (e *Enricher) EnrichFinding(finding *schemas.Finding) {
	if len(finding.CWE) == 0 || e.cweProvider == nil {
		return
	}

	cweID := finding.CWE[0]
	entry, err := e.cweProvider.GetCWE(cweID)
	if err != nil {
		e.logger.Debug("Could not retrieve CWE details", zap.String("cwe_id", cweID), zap.Error(err))
		return
	}

	if finding.VulnerabilityName == "" && entry.Name != "" {
		finding.VulnerabilityName = entry.Name
	}
	if len(finding.Description) < minDescriptionLength && entry.Description != "" {
		finding.Description = entry.Description
	}
}
