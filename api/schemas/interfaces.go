package schemas

import (
	"context"
)

// -- Store Interface --

// Store persists analysis runs. It keeps the CLI independent of the concrete
// database implementation.
type Store interface {
	// PersistRun saves the run metadata and its flat findings.
	PersistRun(ctx context.Context, envelope *ResultEnvelope) error
	// GetFindingsByRunID retrieves all findings stored for a run.
	GetFindingsByRunID(ctx context.Context, runID string) ([]Finding, error)
}
