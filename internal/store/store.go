package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// findingColumns is the COPY column order for the findings table.
var findingColumns = []string{
	"id", "run_id", "observed_at", "target", "module", "vulnerability_name",
	"category", "severity", "entry_index", "description", "evidence", "recommendation", "cwe",
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    entry_count INTEGER NOT NULL,
    analysis JSONB NOT NULL,
    summary JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS findings (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    observed_at TIMESTAMPTZ NOT NULL,
    target TEXT NOT NULL,
    module TEXT NOT NULL,
    vulnerability_name TEXT NOT NULL,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    entry_index INTEGER NOT NULL,
    description TEXT NOT NULL,
    evidence JSONB NOT NULL,
    recommendation TEXT NOT NULL,
    cwe TEXT[]
);
CREATE INDEX IF NOT EXISTS findings_run_id_idx ON findings (run_id);
CREATE TABLE IF NOT EXISTS finding_groups (
    run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    message TEXT NOT NULL,
    severity TEXT NOT NULL,
    count INTEGER NOT NULL,
    sample_entries INTEGER[] NOT NULL,
    PRIMARY KEY (run_id, category, message)
);
`

const sqlInsertRun = `
        INSERT INTO analysis_runs (id, source, created_at, entry_count, analysis, summary)
        VALUES ($1, $2, $3, $4, $5, $6);
    `

const sqlInsertGroup = `
        INSERT INTO finding_groups (run_id, category, message, severity, count, sample_entries)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (run_id, category, message) DO UPDATE SET
            severity = EXCLUDED.severity,
            count = EXCLUDED.count,
            sample_entries = EXCLUDED.sample_entries;
    `

const sqlSelectFindings = `
        SELECT id, observed_at, target, module, vulnerability_name, category, severity, entry_index, description, evidence, recommendation, cwe
        FROM findings
        WHERE run_id = $1
        ORDER BY observed_at ASC, entry_index ASC;
    `

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistRun saves the run row, its flat findings and its aggregated groups
// in one transaction.
func (s *Store) PersistRun(ctx context.Context, envelope *schemas.ResultEnvelope) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistRunRow(ctx, tx, envelope); err != nil {
		return err
	}
	if len(envelope.Findings) > 0 {
		if err := s.persistFindings(ctx, tx, envelope.RunID, envelope.Findings); err != nil {
			return err
		}
	}
	if envelope.View != nil && envelope.View.Total() > 0 {
		if err := s.persistGroups(ctx, tx, envelope.RunID, envelope.View); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Persisted analysis run",
		zap.String("run_id", envelope.RunID),
		zap.Int("findings", len(envelope.Findings)),
	)
	return nil
}

func (s *Store) persistRunRow(ctx context.Context, tx pgx.Tx, envelope *schemas.ResultEnvelope) error {
	entryCount := 0
	if envelope.Analysis != nil {
		entryCount = envelope.Analysis.EntryCount
	}
	analysis, err := jsonObject(envelope.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	summary, err := jsonObject(envelope.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	createdAt := envelope.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.Exec(ctx, sqlInsertRun,
		envelope.RunID, envelope.Source, createdAt.UTC(), entryCount, analysis, summary,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", envelope.RunID, err)
	}
	return nil
}

func (s *Store) persistFindings(ctx context.Context, tx pgx.Tx, runID string, findings []schemas.Finding) error {
	rows := make([][]any, len(findings))
	for i, f := range findings {
		evidence := f.Evidence
		if len(evidence) == 0 || string(evidence) == "null" {
			evidence = []byte("{}")
		}
		rows[i] = []any{
			f.ID, runID, f.ObservedAt.UTC(),
			f.Target, f.Module, f.VulnerabilityName,
			f.Category, f.Severity.String(), f.EntryIndex,
			f.Description, []byte(evidence), f.Recommendation, f.CWE,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"findings"}, findingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(findings) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(findings), copyCount)
	}
	return nil
}

func (s *Store) persistGroups(ctx context.Context, tx pgx.Tx, runID string, view *schemas.FindingsView) error {
	var groups []schemas.AggregatedFinding
	groups = append(groups, view.Critical...)
	groups = append(groups, view.Warning...)
	groups = append(groups, view.Info...)

	batch := &pgx.Batch{}
	for _, g := range groups {
		batch.Queue(sqlInsertGroup, runID, g.Key.Category, g.Key.Message, g.Severity.String(), g.Count, g.SampleEntries)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i, g := range groups {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert finding group %q (index %d): %w", g.Key.Message, i, err)
		}
	}
	return nil
}

// GetFindingsByRunID retrieves all findings stored for a run.
func (s *Store) GetFindingsByRunID(ctx context.Context, runID string) ([]schemas.Finding, error) {
	rows, err := s.pool.Query(ctx, sqlSelectFindings, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	findings := []schemas.Finding{}
	for rows.Next() {
		var f schemas.Finding
		var severity string
		var evidence []byte

		if err := rows.Scan(
			&f.ID, &f.ObservedAt, &f.Target, &f.Module, &f.VulnerabilityName,
			&f.Category, &severity, &f.EntryIndex, &f.Description,
			&evidence, &f.Recommendation, &f.CWE,
		); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}

		sev, err := schemas.ParseSeverity(severity)
		if err != nil {
			s.log.Warn("Stored finding has an unknown severity", zap.String("id", f.ID), zap.String("severity", severity))
		}
		f.Severity = sev
		f.Evidence = evidence
		f.RunID = runID
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return findings, nil
}

// jsonObject encodes v, mapping a nil value to an empty object.
func jsonObject(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("{}"), nil
	}
	return raw, nil
}
