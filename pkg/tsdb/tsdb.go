// Package tsdb is the time-series store: prices, orderbooks, computed
// indicators, strategy signals, orders, and positions, speaking the
// Postgres wire protocol via sqlx over lib/pq. The application's
// bookkeeping (risk configs, strategy definitions and instances)
// stays in pkg/db's sqlite store; this package is for the high-volume
// time-series tables spec.md's store interface demands.
package tsdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
)

// Store wraps a sqlx.DB connected to the time-series Postgres instance.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn (a standard postgres:// connection string) and
// ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tsdb: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SQLDB exposes the underlying *sql.DB for callers that need raw
// database/sql access (the batched signal writer in internal/persistence,
// which runs ordinary parameterized SQL in a transaction rather than
// sqlx's named-parameter binding).
func (s *Store) SQLDB() *sql.DB {
	return s.db.DB
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tsdb: ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		quote_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS orderbooks (
		symbol TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		bids JSONB NOT NULL,
		asks JSONB NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS indicators (
		session_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION,
		blob JSONB,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1,
		PRIMARY KEY (session_id, variant_id, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_signals (
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		triggered BOOLEAN NOT NULL,
		conditions_met JSONB,
		indicator_values JSONB,
		metadata JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION,
		filled_qty DOUBLE PRECISION NOT NULL DEFAULT 0,
		filled_price DOUBLE PRECISION,
		commission DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		metadata JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		position_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		stop_loss DOUBLE PRECISION,
		take_profit DOUBLE PRECISION,
		status TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS execution_sessions (
		session_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		symbols JSONB NOT NULL,
		status TEXT NOT NULL,
		parameters JSONB,
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		metrics JSONB,
		error_message TEXT
	)`,
}
