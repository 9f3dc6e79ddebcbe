// Package notes is the narrow write path into the invoicing application's
// notes table: the print queue only ever flips a note to printed.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// StatusPrinted is the note status set once its document left the printer.
const StatusPrinted = "printed"

// ErrNoteNotFound is returned when no note matches the owner and id.
var ErrNoteNotFound = errors.New("note not found")

// Store updates note rows.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a note store. now defaults to time.Now.
func NewStore(db *sqlx.DB, logger *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, logger: logger, now: now}
}

// MarkPrinted sets the note's status to printed.
func (s *Store) MarkPrinted(ctx context.Context, ownerID, noteID string) error {
	query := s.db.Rebind(`
		UPDATE notes
		SET status = ?,
		    updated_at = ?
		WHERE id = ?
		  AND owner_id = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		StatusPrinted, s.now().UTC().Truncate(time.Microsecond), noteID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark note printed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoteNotFound
	}

	s.logger.Info("Note marked printed",
		slog.String("note_id", noteID),
		slog.String("owner_id", ownerID),
	)

	return nil
}

// Status returns the current status of a note.
func (s *Store) Status(ctx context.Context, ownerID, noteID string) (string, error) {
	var status string
	query := s.db.Rebind(`SELECT status FROM notes WHERE id = ? AND owner_id = ?`)
	if err := s.db.GetContext(ctx, &status, query, noteID, ownerID); err != nil {
		return "", fmt.Errorf("failed to get note status: %w", err)
	}
	return status, nil
}
