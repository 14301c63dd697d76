package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/localnotify/internal/config"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the notification tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pending_notifications (
		identifier          TEXT PRIMARY KEY,
		title               TEXT NOT NULL,
		body                TEXT NOT NULL,
		sound               TEXT NOT NULL DEFAULT '',
		category_identifier TEXT NOT NULL DEFAULT '',
		user_info           JSONB NOT NULL DEFAULT '{}',
		trigger_kind        TEXT NOT NULL,
		trigger_data        JSONB NOT NULL,
		repeats             BOOLEAN NOT NULL DEFAULT FALSE,
		next_fire_at        TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_notifications_fire
		ON pending_notifications (next_fire_at) WHERE repeats = FALSE`,
	`CREATE TABLE IF NOT EXISTS notification_authorization (
		id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		status      TEXT NOT NULL,
		prompts     INTEGER NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_categories (
		identifier TEXT PRIMARY KEY,
		actions    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id            UUID PRIMARY KEY,
		event_type    TEXT NOT NULL,
		payload       JSONB NOT NULL,
		status        TEXT NOT NULL,
		error_message TEXT,
		retry_count   INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		processed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		ON outbox_events (created_at) WHERE status = 'pending'`,
}
