package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS print_requests (
		id               TEXT PRIMARY KEY,
		note_id          TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		document_payload JSONB NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('pending','processing','printed','error')),
		error_message    TEXT,
		claimed_by       TEXT,
		claimed_at       TIMESTAMPTZ,
		processed_at     TIMESTAMPTZ,
		resubmitted_from TEXT,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_print_requests_owner_status ON print_requests (owner_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS active_devices (
		device_id      TEXT NOT NULL,
		owner_id       TEXT NOT NULL,
		hostname       TEXT NOT NULL DEFAULT '',
		agent_kind     TEXT NOT NULL DEFAULT '',
		last_active_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_id, device_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_active_devices_owner ON active_devices (owner_id, last_active_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS print_requests (
		id               TEXT PRIMARY KEY,
		note_id          TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		document_payload TEXT NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('pending','processing','printed','error')),
		error_message    TEXT,
		claimed_by       TEXT,
		claimed_at       DATETIME,
		processed_at     DATETIME,
		resubmitted_from TEXT,
		created_at       DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_print_requests_owner_status ON print_requests (owner_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS active_devices (
		device_id      TEXT NOT NULL,
		owner_id       TEXT NOT NULL,
		hostname       TEXT NOT NULL DEFAULT '',
		agent_kind     TEXT NOT NULL DEFAULT '',
		last_active_at DATETIME NOT NULL,
		PRIMARY KEY (owner_id, device_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_active_devices_owner ON active_devices (owner_id, last_active_at)`,
}

// EnsureSchema creates the queue and device tables for the connection's
// dialect if they don't exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := sqliteSchema
	if db.DriverName() == "postgres" {
		stmts = postgresSchema
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}
