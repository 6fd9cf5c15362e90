package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangeScope/internal/model"
	"rangeScope/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS apr_results (
	id          UUID PRIMARY KEY,
	chain_id    BIGINT NOT NULL,
	pool_id     TEXT NOT NULL,
	tick_lower  INTEGER NOT NULL,
	tick_upper  INTEGER NOT NULL,
	apr_24h     DOUBLE PRECISION NOT NULL,
	apr_7d      DOUBLE PRECISION NOT NULL,
	apr_30d     DOUBLE PRECISION NOT NULL,
	input       JSONB NOT NULL,
	result      JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS apr_results_pool_idx ON apr_results (chain_id, pool_id, recorded_at DESC);
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for result history and the cache.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// EnsureSchema creates the tables the store uses.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// SaveResult records one computed result.
func (s *Store) SaveResult(ctx context.Context, input model.PositionInput, result model.APRResult) error {
	return s.UpsertResults(ctx, []storage.Record{storage.NewRecord(input, result, s.now())})
}

// UpsertResults inserts or replaces result records by id.
func (s *Store) UpsertResults(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		input, err := json.Marshal(r.Input)
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
		result, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		batch.Queue(`
			INSERT INTO apr_results (
				id, chain_id, pool_id, tick_lower, tick_upper, apr_24h, apr_7d, apr_30d, input, result, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11)
			ON CONFLICT (id)
			DO UPDATE SET
				apr_24h = EXCLUDED.apr_24h,
				apr_7d = EXCLUDED.apr_7d,
				apr_30d = EXCLUDED.apr_30d,
				input = EXCLUDED.input,
				result = EXCLUDED.result,
				recorded_at = EXCLUDED.recorded_at
		`,
			r.ID,
			int64(r.Input.ChainID),
			r.Input.PoolID,
			r.Input.TickLower,
			r.Input.TickUpper,
			r.Result.APR24h,
			r.Result.APR7d,
			r.Result.APR30d,
			string(input),
			string(result),
			r.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Records returns the stored records matching f, newest first.
func (s *Store) Records(ctx context.Context, f storage.Filter) ([]storage.Record, error) {
	query, args := recordsQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var (
			r             storage.Record
			input, result []byte
		)
		if err := rows.Scan(&r.ID, &input, &result, &r.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(input, &r.Input); err != nil {
			return nil, fmt.Errorf("decode input of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func recordsQuery(f storage.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.ChainID != 0 {
		args = append(args, int64(f.ChainID))
		where = append(where, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if f.PoolID != "" {
		args = append(args, model.NormalizePoolID(f.PoolID))
		where = append(where, fmt.Sprintf("pool_id = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id::text, input, result, recorded_at FROM apr_results")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY recorded_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
