package notes

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnsureSchema creates a minimal notes table. In production the table
// belongs to the invoicing application; this exists for single-station
// installs and tests.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	timestamp := "DATETIME"
	if db.DriverName() == "postgres" {
		timestamp = "TIMESTAMPTZ"
	}

	stmt := `CREATE TABLE IF NOT EXISTS notes (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		number     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'draft',
		updated_at ` + timestamp + `
	)`

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create notes table: %w", err)
	}
	return nil
}
