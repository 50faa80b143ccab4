package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/orefield/specharvest/internal/specs"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = specs.ErrRunNotFound

// RunStore tracks harvest run lifecycle rows in Postgres.
type RunStore struct {
	pool  dbPool
	clock specs.Clock
}

// NewRunStore constructs a RunStore on an existing pool.
func NewRunStore(pool dbPool, clock specs.Clock) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &RunStore{pool: pool, clock: clock}, nil
}

// The run store assumes this schema:
//
//	CREATE TABLE harvest_runs (
//		run_id TEXT PRIMARY KEY,
//		brand TEXT NOT NULL,
//		model TEXT NOT NULL,
//		equipment_class TEXT,
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ,
//		status TEXT NOT NULL,
//		error_message TEXT,
//		counters JSONB NOT NULL
//	);

const startRunSQL = `
INSERT INTO harvest_runs (run_id, brand, model, equipment_class, started_at, status, counters)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status
WHERE harvest_runs.status <> EXCLUDED.status`

// StartRun records a run entering the running state.
func (s *RunStore) StartRun(ctx context.Context, item specs.WorkItem) error {
	if item.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	counters, err := json.Marshal(specs.RunCounters{})
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	args := []any{
		item.RunID, item.Brand, item.Model, item.EquipmentClass,
		s.clock.Now(), string(specs.RunRunning), counters,
	}
	if _, err := s.pool.Exec(ctx, startRunSQL, args...); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

const completeRunSQL = `
UPDATE harvest_runs
SET finished_at = $1, status = $2, error_message = $3, counters = $4
WHERE run_id = $5`

// CompleteRun marks a run finished with its terminal status and counters.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID string,
	status specs.RunStatus,
	errText string,
	counters specs.RunCounters,
) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	args := []any{s.clock.Now(), string(status), errText, countersJSON, runID}
	if _, err := s.pool.Exec(ctx, completeRunSQL, args...); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

const getRunSQL = `
SELECT run_id, brand, model, equipment_class, started_at, finished_at, status, error_message, counters
FROM harvest_runs
WHERE run_id = $1`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (specs.RunRecord, error) {
	var (
		rec          specs.RunRecord
		status       string
		countersJSON []byte
	)
	err := s.pool.QueryRow(ctx, getRunSQL, runID).Scan(
		&rec.RunID, &rec.Brand, &rec.Model, &rec.EquipmentClass,
		&rec.StartedAt, &rec.FinishedAt, &status, &rec.Error, &countersJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return specs.RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return specs.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	rec.Status = specs.RunStatus(status)
	if err := json.Unmarshal(countersJSON, &rec.Counters); err != nil {
		return specs.RunRecord{}, fmt.Errorf("unmarshal counters: %w", err)
	}
	return rec, nil
}

const listRunsSQL = `
SELECT run_id, brand, model, equipment_class, started_at, finished_at, status, error_message, counters
FROM harvest_runs
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`

// ListRuns retrieves run rows, optionally filtered by status.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *specs.RunStatus,
	limit, offset int,
) ([]specs.RunRecord, error) {
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []specs.RunRecord
	for rows.Next() {
		var (
			rec          specs.RunRecord
			rowStatus    string
			countersJSON []byte
		)
		if err := rows.Scan(
			&rec.RunID, &rec.Brand, &rec.Model, &rec.EquipmentClass,
			&rec.StartedAt, &rec.FinishedAt, &rowStatus, &rec.Error, &countersJSON,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		rec.Status = specs.RunStatus(rowStatus)
		if err := json.Unmarshal(countersJSON, &rec.Counters); err != nil {
			return nil, fmt.Errorf("unmarshal counters: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
