// Package postgres stores conversations, messages, public keys and the team
// roster in PostgreSQL through a pgx connection pool.
//
// Expiry is enforced in SQL: every message query filters on expires_at, and
// DeleteExpired reclaims rows whose expiry has passed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect creates a pgx pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts ...func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = 60 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// normalizeDSN converts driver-suffixed DSNs found in .env files to a form
// pgx accepts.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	for _, p := range [][2]string{
		{"postgresql+asyncpg://", "postgresql://"},
		{"postgres+asyncpg://", "postgres://"},
		{"postgresql+pgx://", "postgresql://"},
		{"postgres+pgx://", "postgres://"},
	} {
		s = strings.Replace(s, p[0], p[1], 1)
	}
	return s
}

// isUniqueViolation reports whether err is a unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
