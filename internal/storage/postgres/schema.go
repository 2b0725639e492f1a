package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id               TEXT PRIMARY KEY,
		type             TEXT NOT NULL CHECK (type IN ('direct', 'team')),
		participants     TEXT[],
		team_id          TEXT,
		retention_policy TEXT NOT NULL CHECK (retention_policy IN ('7d', '30d')),
		last_message_at  TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_pair
		ON conversations (LEAST(participants[1], participants[2]), GREATEST(participants[1], participants[2]))
		WHERE type = 'direct'`,
	`CREATE INDEX IF NOT EXISTS conversations_team ON conversations (team_id) WHERE type = 'team'`,
	`CREATE TABLE IF NOT EXISTS messages (
		id                TEXT PRIMARY KEY,
		conversation_id   TEXT NOT NULL REFERENCES conversations (id),
		sender_id         TEXT NOT NULL,
		recipients        TEXT[] NOT NULL,
		ciphertext        TEXT NOT NULL,
		iv                TEXT NOT NULL,
		auth_tag          TEXT NOT NULL,
		envelopes         JSONB NOT NULL,
		sender_public_key TEXT NOT NULL,
		retention_policy  TEXT NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created ON messages (conversation_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS messages_expires ON messages (expires_at)`,
	`CREATE TABLE IF NOT EXISTS public_keys (
		user_id       TEXT PRIMARY KEY,
		device_id     TEXT NOT NULL,
		public_key    TEXT NOT NULL,
		algorithm     TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id TEXT NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (team_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		user_id TEXT PRIMARY KEY
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
