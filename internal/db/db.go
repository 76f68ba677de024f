// Package db provides the PostgreSQL-backed notice repository. The repository
// accepts a DBTX interface that is satisfied by both *pgxpool.Pool (normal
// queries) and pgx.Tx (transactional execution), so the same code works
// inside or outside a transaction.
//
// Expected schema (owned by the deployment, not migrated here):
//
//	CREATE TABLE notices (
//	    id         text PRIMARY KEY,
//	    user_id    text NOT NULL,
//	    subject    varchar(100) NOT NULL,
//	    body       text NOT NULL,
//	    created_at timestamptz NOT NULL DEFAULT NOW(),
//	    read_at    timestamptz,
//	    CHECK (read_at IS NULL OR read_at >= created_at)
//	);
//	CREATE INDEX idx_notices_user_created ON notices (user_id, created_at DESC);
//	CREATE INDEX idx_notices_user_unread ON notices (user_id) WHERE read_at IS NULL;
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"noticebox/internal/config"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
