// Package audit persists a permanent history of scrape requests, video sync
// attempts, and reconciliation runs to Postgres, independent of the
// transient C1/C4/C5 projections (which only hold in-flight and recent
// state). Grounded on the teacher's infrastructure/postgres package:
// same pgxpool.Pool client shape, same DBTX test seam.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig configures the audit store's connection pool.
type ClientConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultClientConfig returns sensible pool defaults for dsn.
func DefaultClientConfig(dsn string) ClientConfig {
	return ClientConfig{
		DSN:             dsn,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Client wraps the Postgres connection pool backing the audit tables.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient connects and verifies the pool with a ping, failing fast on
// misconfiguration.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse audit DSN: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create audit connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Pool returns the underlying connection pool for store construction.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases all pooled connections.
func (c *Client) Close() {
	c.pool.Close()
}

// nullString returns nil for empty strings, so they round-trip as SQL NULL
// rather than an empty string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
