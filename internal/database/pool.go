// Package database owns the relational store connection. The store's
// schema and migrations are external collaborators; this package only
// opens and closes the pool used by internal/repository/postgres.
package database

import (
	"context"
	"fmt"

	"histeeria-backend/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgx connection pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a connection pool sized per the server's configured
// bounds (§5: ~20 base connections + 10 overflow).
func NewPool(ctx context.Context, cfg *config.PostgresConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	maxConns := cfg.MaxConns + cfg.MaxOverflow
	if maxConns <= 0 {
		maxConns = 30
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases the pool.
func (p *Pool) Close() {
	p.Pool.Close()
}
