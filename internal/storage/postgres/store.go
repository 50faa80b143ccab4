// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orefield/specharvest/internal/specs"
)

// Config controls the Postgres connection pool used by the spec store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists reconciled specs, rimpull curves and scored candidates.
// Spec and rimpull rows are keyed per machine and replaced wholesale on
// every reconcile run; candidate rows are immutable once written.
type Store struct {
	pool  dbPool
	clock specs.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewPool builds a pgx pool from the config. The spec store and the run
// store share one pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, clock: systemClock{}}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool, clock specs.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// The store assumes this schema:
//
//	CREATE TABLE validated_specs (
//		brand TEXT NOT NULL,
//		model TEXT NOT NULL,
//		parameter TEXT NOT NULL,
//		value JSONB NOT NULL,
//		unit TEXT,
//		confidence DOUBLE PRECISION NOT NULL,
//		supporting JSONB NOT NULL,
//		conflicting JSONB NOT NULL,
//		status TEXT NOT NULL,
//		reject_reason TEXT,
//		updated_at TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (brand, model, parameter)
//	);
//
//	CREATE TABLE rimpull_curves (
//		brand TEXT NOT NULL,
//		model TEXT NOT NULL,
//		points JSONB NOT NULL,
//		confidence DOUBLE PRECISION NOT NULL,
//		flags JSONB NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (brand, model)
//	);
//
//	CREATE TABLE candidates (
//		id TEXT PRIMARY KEY,
//		brand TEXT NOT NULL,
//		model TEXT NOT NULL,
//		parameter TEXT NOT NULL,
//		raw_match TEXT,
//		value JSONB NOT NULL,
//		unit TEXT,
//		method TEXT NOT NULL,
//		source_url TEXT NOT NULL,
//		source_domain TEXT NOT NULL,
//		span_start INT,
//		span_end INT,
//		confidence DOUBLE PRECISION NOT NULL,
//		tier TEXT NOT NULL
//	);

const upsertSpecSQL = `
INSERT INTO validated_specs (
	brand, model, parameter, value, unit, confidence,
	supporting, conflicting, status, reject_reason, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (brand, model, parameter) DO UPDATE SET
	value = EXCLUDED.value,
	unit = EXCLUDED.unit,
	confidence = EXCLUDED.confidence,
	supporting = EXCLUDED.supporting,
	conflicting = EXCLUDED.conflicting,
	status = EXCLUDED.status,
	reject_reason = EXCLUDED.reject_reason,
	updated_at = EXCLUDED.updated_at`

// UpsertSpec writes the single reconciled record for its
// (brand, model, parameter) key.
func (s *Store) UpsertSpec(ctx context.Context, spec specs.ValidatedSpec) error {
	if spec.Brand == "" || spec.Model == "" || spec.Parameter == "" {
		return fmt.Errorf("spec key is required")
	}
	value, err := json.Marshal(spec.Value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	supporting, err := json.Marshal(emptyIfNil(spec.Supporting))
	if err != nil {
		return fmt.Errorf("marshal supporting: %w", err)
	}
	conflicting, err := json.Marshal(emptyIfNil(spec.Conflicting))
	if err != nil {
		return fmt.Errorf("marshal conflicting: %w", err)
	}
	args := []any{
		spec.Brand, spec.Model, spec.Parameter, value, spec.Unit, spec.Confidence,
		supporting, conflicting, string(spec.Status), spec.RejectReason, s.clock.Now(),
	}
	if _, err := s.pool.Exec(ctx, upsertSpecSQL, args...); err != nil {
		return fmt.Errorf("upsert spec: %w", err)
	}
	return nil
}

const upsertRimpullSQL = `
INSERT INTO rimpull_curves (
	brand, model, points, confidence, flags, updated_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (brand, model) DO UPDATE SET
	points = EXCLUDED.points,
	confidence = EXCLUDED.confidence,
	flags = EXCLUDED.flags,
	updated_at = EXCLUDED.updated_at`

// UpsertRimpull writes the consolidated rimpull curve for a machine.
func (s *Store) UpsertRimpull(ctx context.Context, curve specs.RimpullCurve) error {
	if curve.Brand == "" || curve.Model == "" {
		return fmt.Errorf("curve key is required")
	}
	points, err := json.Marshal(curve.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	flags, err := json.Marshal(emptyIfNil(curve.Flags))
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	args := []any{curve.Brand, curve.Model, points, curve.Confidence, flags, s.clock.Now()}
	if _, err := s.pool.Exec(ctx, upsertRimpullSQL, args...); err != nil {
		return fmt.Errorf("upsert rimpull: %w", err)
	}
	return nil
}

const insertCandidateSQL = `
INSERT INTO candidates (
	id, brand, model, parameter, raw_match, value, unit, method,
	source_url, source_domain, span_start, span_end, confidence, tier
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO NOTHING`

// SaveCandidates persists scored candidates. Re-saving an existing ID is
// a no-op since candidates never change after creation.
func (s *Store) SaveCandidates(ctx context.Context, candidates []specs.ScoredCandidate) error {
	for _, c := range candidates {
		if c.ID == "" {
			return fmt.Errorf("candidate id is required")
		}
		value, err := json.Marshal(c.Value)
		if err != nil {
			return fmt.Errorf("marshal candidate value: %w", err)
		}
		args := []any{
			c.ID, c.Brand, c.Model, c.Parameter, c.RawMatch, value, c.Unit, string(c.Method),
			c.SourceURL, c.SourceDomain, c.SpanStart, c.SpanEnd, c.Confidence, string(c.Tier),
		}
		if _, err := s.pool.Exec(ctx, insertCandidateSQL, args...); err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.ID, err)
		}
	}
	return nil
}

const listCandidatesSQL = `
SELECT id, brand, model, parameter, raw_match, value, unit, method,
	source_url, source_domain, span_start, span_end, confidence, tier
FROM candidates
WHERE brand = $1 AND model = $2
ORDER BY parameter, id`

// ListCandidates returns all stored candidates for a machine, ordered by
// parameter then ID.
func (s *Store) ListCandidates(ctx context.Context, brand, model string) ([]specs.ScoredCandidate, error) {
	rows, err := s.pool.Query(ctx, listCandidatesSQL, brand, model)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []specs.ScoredCandidate
	for rows.Next() {
		var (
			c         specs.ScoredCandidate
			valueJSON []byte
			method    string
			tier      string
		)
		if err := rows.Scan(
			&c.ID, &c.Brand, &c.Model, &c.Parameter, &c.RawMatch, &valueJSON, &c.Unit, &method,
			&c.SourceURL, &c.SourceDomain, &c.SpanStart, &c.SpanEnd, &c.Confidence, &tier,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &c.Value); err != nil {
			return nil, fmt.Errorf("unmarshal candidate value: %w", err)
		}
		c.Method = specs.ExtractionMethod(method)
		c.Tier = specs.SourceTier(tier)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

const getSpecsSQL = `
SELECT brand, model, parameter, value, unit, confidence,
	supporting, conflicting, status, reject_reason
FROM validated_specs
WHERE ($1 = '' OR brand = $1) AND ($2 = '' OR model = $2)
	AND status <> 'rejected'
ORDER BY brand, model, parameter`

// GetSpecs returns reconciled records for reporting. Empty brand or model
// matches all. Rejected records stay in the table for audit but are never
// returned here.
func (s *Store) GetSpecs(ctx context.Context, brand, model string) ([]specs.ValidatedSpec, error) {
	rows, err := s.pool.Query(ctx, getSpecsSQL, brand, model)
	if err != nil {
		return nil, fmt.Errorf("get specs: %w", err)
	}
	defer rows.Close()

	var out []specs.ValidatedSpec
	for rows.Next() {
		var (
			spec            specs.ValidatedSpec
			valueJSON       []byte
			supportingJSON  []byte
			conflictingJSON []byte
			status          string
		)
		if err := rows.Scan(
			&spec.Brand, &spec.Model, &spec.Parameter, &valueJSON, &spec.Unit, &spec.Confidence,
			&supportingJSON, &conflictingJSON, &status, &spec.RejectReason,
		); err != nil {
			return nil, fmt.Errorf("scan spec: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &spec.Value); err != nil {
			return nil, fmt.Errorf("unmarshal spec value: %w", err)
		}
		if err := json.Unmarshal(supportingJSON, &spec.Supporting); err != nil {
			return nil, fmt.Errorf("unmarshal supporting: %w", err)
		}
		if err := json.Unmarshal(conflictingJSON, &spec.Conflicting); err != nil {
			return nil, fmt.Errorf("unmarshal conflicting: %w", err)
		}
		spec.Status = specs.Status(status)
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specs: %w", err)
	}
	return out, nil
}

const getRimpullSQL = `
SELECT brand, model, points, confidence, flags
FROM rimpull_curves
WHERE brand = $1 AND model = $2`

// GetRimpull returns the consolidated curve for a machine, or nil when
// none has been stored.
func (s *Store) GetRimpull(ctx context.Context, brand, model string) (*specs.RimpullCurve, error) {
	var (
		curve      specs.RimpullCurve
		pointsJSON []byte
		flagsJSON  []byte
	)
	err := s.pool.QueryRow(ctx, getRimpullSQL, brand, model).Scan(
		&curve.Brand, &curve.Model, &pointsJSON, &curve.Confidence, &flagsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rimpull: %w", err)
	}
	if err := json.Unmarshal(pointsJSON, &curve.Points); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	if err := json.Unmarshal(flagsJSON, &curve.Flags); err != nil {
		return nil, fmt.Errorf("unmarshal flags: %w", err)
	}
	return &curve, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
