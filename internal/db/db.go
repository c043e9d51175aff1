package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("component", "db").Int32("max_conns", cfg.MaxConns).Msg("database connected")

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id             UUID PRIMARY KEY,
	room_id        TEXT        NOT NULL,
	sender_id      TEXT        NOT NULL,
	content        TEXT        NOT NULL DEFAULT '',
	attachment_url TEXT        NOT NULL DEFAULT '',
	reply_to_id    UUID        NULL,
	edited         BOOLEAN     NOT NULL DEFAULT FALSE,
	edited_at      TIMESTAMPTZ NULL,
	deleted        BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);

CREATE TABLE IF NOT EXISTS reactions (
	message_id UUID        NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
	identity   TEXT        NOT NULL,
	emoji      TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (message_id, identity, emoji)
);

CREATE TABLE IF NOT EXISTS profiles (
	identity         TEXT PRIMARY KEY,
	display_name     TEXT        NOT NULL DEFAULT '',
	display_name_set BOOLEAN     NOT NULL DEFAULT FALSE,
	avatar_url       TEXT        NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables the repositories expect. It is safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
