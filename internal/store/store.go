package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Schema creates the tables used by the store. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS optimization_runs (
    run_id              UUID PRIMARY KEY,
    workflow_id         TEXT NOT NULL DEFAULT '',
    original_step_count INTEGER NOT NULL,
    optimized_step_count INTEGER NOT NULL,
    sequences_found     INTEGER NOT NULL,
    sequences_optimized INTEGER NOT NULL,
    steps_removed       INTEGER NOT NULL,
    ai_analysis_used    BOOLEAN NOT NULL,
    average_confidence  DOUBLE PRECISION,
    original_steps      JSONB NOT NULL,
    optimized_steps     JSONB NOT NULL,
    oracle_stats        JSONB,
    created_at          TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS optimization_map_entries (
    run_id           UUID NOT NULL REFERENCES optimization_runs (run_id) ON DELETE CASCADE,
    position         INTEGER NOT NULL,
    original_indices BIGINT[] NOT NULL,
    optimized_index  INTEGER NOT NULL,
    reason           TEXT NOT NULL,
    decision_method  TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);
`

var mapEntryColumns = []string{"run_id", "position", "original_indices", "optimized_index", "reason", "decision_method"}

// Store provides a PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

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

// EnsureSchema creates the store's tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PersistRun stores a finished run, its original and optimized steps and its
// audit map in a single transaction.
func (s *Store) PersistRun(ctx context.Context, original []schemas.WorkflowStep, result *schemas.OptimizationResult) error {
	if result == nil {
		return errors.New("cannot persist a nil optimization result")
	}

	originalJSON, err := json.Marshal(stepsOrEmpty(original))
	if err != nil {
		return fmt.Errorf("failed to marshal original steps: %w", err)
	}
	optimizedJSON, err := json.Marshal(stepsOrEmpty(result.Steps))
	if err != nil {
		return fmt.Errorf("failed to marshal optimized steps: %w", err)
	}
	var statsJSON []byte
	if result.Metadata.Oracle != nil {
		if statsJSON, err = json.Marshal(result.Metadata.Oracle); err != nil {
			return fmt.Errorf("failed to marshal oracle stats: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after Commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	meta := result.Metadata
	createdAt := result.StartedAt.UTC()
	if result.StartedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, sqlInsertRun,
		result.RunID, result.WorkflowID,
		result.OriginalStepCount, len(result.Steps),
		meta.SequencesFound, meta.SequencesOptimized, meta.StepsRemoved,
		meta.AIAnalysisUsed, meta.AverageConfidence,
		originalJSON, optimizedJSON, statsJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	if len(meta.OptimizationMap) > 0 {
		if err := s.persistMapEntries(ctx, tx, result.RunID, meta.OptimizationMap); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", result.RunID), zap.Int("map_entries", len(meta.OptimizationMap)))
	return nil
}

const sqlInsertRun = `
        INSERT INTO optimization_runs (
            run_id, workflow_id, original_step_count, optimized_step_count,
            sequences_found, sequences_optimized, steps_removed,
            ai_analysis_used, average_confidence,
            original_steps, optimized_steps, oracle_stats, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
    `

func (s *Store) persistMapEntries(ctx context.Context, tx pgx.Tx, runID string, entries []schemas.OptimizationMapEntry) error {
	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		indices := make([]int64, len(e.OriginalIndices))
		for j, idx := range e.OriginalIndices {
			indices[j] = int64(idx)
		}
		rows[i] = []interface{}{runID, i, indices, e.OptimizedIndex, e.Reason, string(e.DecisionMethod)}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"optimization_map_entries"}, mapEntryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy map entries: %w", err)
	}
	if int(copyCount) != len(entries) {
		return fmt.Errorf("mismatch in copied map entry count: expected %d, got %d", len(entries), copyCount)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT run_id, workflow_id, original_step_count, optimized_step_count,
               sequences_found, sequences_optimized, steps_removed,
               ai_analysis_used, average_confidence, created_at
        FROM optimization_runs
        ORDER BY created_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunSummary
	for rows.Next() {
		var r schemas.RunSummary
		err := rows.Scan(
			&r.RunID, &r.WorkflowID, &r.OriginalStepCount, &r.OptimizedStepCount,
			&r.SequencesFound, &r.SequencesOptimized, &r.StepsRemoved,
			&r.AIAnalysisUsed, &r.AverageConfidence, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// GetMapEntries returns the audit map of a run in the order it was recorded.
func (s *Store) GetMapEntries(ctx context.Context, runID string) ([]schemas.OptimizationMapEntry, error) {
	query := `
        SELECT original_indices, optimized_index, reason, decision_method
        FROM optimization_map_entries
        WHERE run_id = $1
        ORDER BY position ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query map entries: %w", err)
	}
	defer rows.Close()

	var entries []schemas.OptimizationMapEntry
	for rows.Next() {
		var (
			e       schemas.OptimizationMapEntry
			indices []int64
			method  string
		)
		if err := rows.Scan(&indices, &e.OptimizedIndex, &e.Reason, &method); err != nil {
			return nil, fmt.Errorf("failed to scan map entry row: %w", err)
		}
		e.OriginalIndices = make([]int, len(indices))
		for i, idx := range indices {
			e.OriginalIndices[i] = int(idx)
		}
		e.DecisionMethod = schemas.DecisionMethod(method)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

func stepsOrEmpty(steps []schemas.WorkflowStep) []schemas.WorkflowStep {
	if steps == nil {
		return []schemas.WorkflowStep{}
	}
	return steps
}
