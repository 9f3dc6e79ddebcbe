package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/notify"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AbandonedMessage is recorded on processing rows whose agent never came back.
const AbandonedMessage = "processing abandoned"

// NoteStatusUpdater is the collaborator that owns the notes table.
type NoteStatusUpdater interface {
	MarkPrinted(ctx context.Context, ownerID, noteID string) error
}

// Config holds the dependencies of a Store.
type Config struct {
	DB       *sqlx.DB
	Logger   *slog.Logger
	Notes    NoteStatusUpdater
	Notifier notify.Notifier
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Store is the durable print request queue.
type Store struct {
	db       *sqlx.DB
	logger   *slog.Logger
	notes    NoteStatusUpdater
	notifier notify.Notifier
	now      func() time.Time
}

// NewStore creates a new Store instance
func NewStore(cfg *Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:       cfg.DB,
		logger:   logger,
		notes:    cfg.Notes,
		notifier: cfg.Notifier,
		now: func() time.Time {
			// microseconds: the finest precision postgres keeps
			return now().UTC().Truncate(time.Microsecond)
		},
	}
}

// ListFilter selects a page of an owner's requests, newest first.
type ListFilter struct {
	OwnerID  string
	Status   domain.Status
	PageSize int
	Cursor   *Cursor
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Enqueue inserts a new pending request holding an immutable copy of payload.
func (s *Store) Enqueue(ctx context.Context, noteID, ownerID string, payload domain.DocumentPayload) (*domain.PrintRequest, error) {
	if strings.TrimSpace(noteID) == "" || strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: note id and owner id are required", domain.ErrInvalidRequest)
	}

	raw, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	req := &domain.PrintRequest{
		ID:         uuid.New().String(),
		NoteID:     noteID,
		OwnerID:    ownerID,
		RawPayload: raw,
		Status:     domain.StatusPending,
		CreatedAt:  s.now(),
	}

	if err := s.insert(ctx, req); err != nil {
		return nil, wrapErr("enqueue print request", err)
	}

	s.logger.Info("Print request enqueued",
		slog.String("request_id", req.ID),
		slog.String("note_id", noteID),
		slog.String("owner_id", ownerID),
	)

	s.publish(ctx, req)

	return req, nil
}

func (s *Store) insert(ctx context.Context, req *domain.PrintRequest) error {
	query := s.db.Rebind(`
		INSERT INTO print_requests (
			id, note_id, owner_id, document_payload,
			status, resubmitted_from, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	var resubmittedFrom sql.NullString
	if req.ResubmittedFrom != "" {
		resubmittedFrom = sql.NullString{String: req.ResubmittedFrom, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		req.ID,
		req.NoteID,
		req.OwnerID,
		string(req.RawPayload),
		string(req.Status),
		resubmittedFrom,
		req.CreatedAt,
	)
	return err
}

func (s *Store) publish(ctx context.Context, req *domain.PrintRequest) {
	if s.notifier == nil {
		return
	}
	// Agents poll anyway, so a lost notification only delays printing.
	if err := s.notifier.PublishPending(ctx, domain.EventFor(req)); err != nil {
		s.logger.Warn("Failed to publish pending notification",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ListPending returns the owner's pending requests, oldest first.
func (s *Store) ListPending(ctx context.Context, ownerID string) ([]*domain.PrintRequest, error) {
	query := s.db.Rebind(`
		SELECT ` + requestColumns + `
		FROM print_requests
		WHERE owner_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`)

	var rows []printRequestRow
	if err := s.db.SelectContext(ctx, &rows, query, ownerID, string(domain.StatusPending)); err != nil {
		return nil, wrapErr("list pending print requests", err)
	}

	return rowsToDomain(rows), nil
}

// Get returns a single request by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.PrintRequest, error) {
	query := s.db.Rebind(`SELECT ` + requestColumns + ` FROM print_requests WHERE id = ?`)

	var row printRequestRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, wrapErr("get print request", err)
	}

	return row.toDomain(), nil
}

// GetForOwner is Get scoped to an owner. Requests of other owners are
// reported as not found.
func (s *Store) GetForOwner(ctx context.Context, ownerID, id string) (*domain.PrintRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

// Claim moves a pending request to processing. It returns false without an
// error when another agent got there first or the row is no longer pending.
func (s *Store) Claim(ctx context.Context, id, claimedBy string) (bool, error) {
	query := s.db.Rebind(`
		UPDATE print_requests
		SET status = ?,
		    claimed_by = ?,
		    claimed_at = ?
		WHERE id = ?
		  AND status = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusProcessing), claimedBy, s.now(), id, string(domain.StatusPending))
	if err != nil {
		return false, wrapErr("claim print request", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("get rows affected", err)
	}

	if rowsAffected != 1 {
		s.logger.Debug("Print request not claimed - already claimed or not pending",
			slog.String("request_id", id),
			slog.String("claimed_by", claimedBy),
		)
		return false, nil
	}

	return true, nil
}

// MarkPrinted completes a processing request and flips the note to printed.
// A failing note update is logged; the request stays printed.
func (s *Store) MarkPrinted(ctx context.Context, id string) error {
	query := s.db.Rebind(`
		UPDATE print_requests
		SET status = ?,
		    processed_at = ?
		WHERE id = ?
		  AND status = ?
		RETURNING owner_id, note_id
	`)

	var ownerID, noteID string
	err := s.db.QueryRowxContext(ctx, query,
		string(domain.StatusPrinted), s.now(), id, string(domain.StatusProcessing),
	).Scan(&ownerID, &noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.transitionFailure(ctx, id, domain.StatusPrinted)
		}
		return wrapErr("mark print request printed", err)
	}

	s.logger.Info("Print request printed",
		slog.String("request_id", id),
		slog.String("note_id", noteID),
	)

	if s.notes != nil {
		if err := s.notes.MarkPrinted(ctx, ownerID, noteID); err != nil {
			s.logger.Error("Failed to update note status",
				slog.String("request_id", id),
				slog.String("note_id", noteID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// MarkError terminates a pending or processing request with a message.
func (s *Store) MarkError(ctx context.Context, id, message string) error {
	query := s.db.Rebind(`
		UPDATE print_requests
		SET status = ?,
		    error_message = ?,
		    processed_at = ?
		WHERE id = ?
		  AND status IN (?, ?)
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusError), message, s.now(), id,
		string(domain.StatusPending), string(domain.StatusProcessing))
	if err != nil {
		return wrapErr("mark print request error", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("get rows affected", err)
	}

	if rowsAffected == 0 {
		return s.transitionFailure(ctx, id, domain.StatusError)
	}

	s.logger.Info("Print request failed",
		slog.String("request_id", id),
		slog.String("error_message", message),
	)

	return nil
}

// transitionFailure explains why a conditional update matched nothing.
func (s *Store) transitionFailure(ctx context.Context, id string, to domain.Status) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
}

// Subscribe registers fn for new pending requests of ownerID. Without a
// notifier it is a no-op and agents rely on polling alone.
func (s *Store) Subscribe(ctx context.Context, ownerID string, fn notify.Handler) (func(), error) {
	if s.notifier == nil {
		return func() {}, nil
	}
	cancel, err := s.notifier.Subscribe(ctx, ownerID, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to pending requests: %w", err)
	}
	return cancel, nil
}

// List returns up to PageSize+1 requests so the caller can tell whether
// another page exists.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*domain.PrintRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM print_requests WHERE owner_id = ?`
	args := []interface{}{filter.OwnerID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, filter.Cursor.CreatedAt.UTC(), filter.Cursor.CreatedAt.UTC(), filter.Cursor.ID)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var rows []printRequestRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, wrapErr("list print requests", err)
	}

	return rowsToDomain(rows), nil
}

// Resubmit copies an errored request into a brand-new pending one.
func (s *Store) Resubmit(ctx context.Context, ownerID, id string) (*domain.PrintRequest, error) {
	original, err := s.GetForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.StatusError {
		return nil, fmt.Errorf("%w: only errored requests can be resubmitted, got %s",
			domain.ErrInvalidTransition, original.Status)
	}

	req := &domain.PrintRequest{
		ID:              uuid.New().String(),
		NoteID:          original.NoteID,
		OwnerID:         original.OwnerID,
		RawPayload:      original.RawPayload,
		Status:          domain.StatusPending,
		ResubmittedFrom: original.ID,
		CreatedAt:       s.now(),
	}

	if err := s.insert(ctx, req); err != nil {
		return nil, wrapErr("resubmit print request", err)
	}

	s.logger.Info("Print request resubmitted",
		slog.String("request_id", req.ID),
		slog.String("resubmitted_from", original.ID),
	)

	s.publish(ctx, req)

	return req, nil
}

// ExpireStale fails processing requests claimed more than olderThan ago.
// It returns the number of rows changed.
func (s *Store) ExpireStale(ctx context.Context, ownerID string, olderThan time.Duration) (int64, error) {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE print_requests
		SET status = ?,
		    error_message = ?,
		    processed_at = ?
		WHERE owner_id = ?
		  AND status = ?
		  AND claimed_at < ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusError), AbandonedMessage, now,
		ownerID, string(domain.StatusProcessing), now.Add(-olderThan))
	if err != nil {
		return 0, wrapErr("expire stale print requests", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, wrapErr("get rows affected", err)
	}

	if rowsAffected > 0 {
		s.logger.Warn("Expired abandoned print requests",
			slog.String("owner_id", ownerID),
			slog.Int64("count", rowsAffected),
		)
	}

	return rowsAffected, nil
}

// Stats counts the owner's requests by status.
func (s *Store) Stats(ctx context.Context, ownerID string) (domain.QueueStats, error) {
	query := s.db.Rebind(`
		SELECT status, COUNT(*) AS count
		FROM print_requests
		WHERE owner_id = ?
		GROUP BY status
	`)

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return domain.QueueStats{}, wrapErr("count print requests", err)
	}

	var stats domain.QueueStats
	for _, r := range rows {
		switch domain.Status(r.Status) {
		case domain.StatusPending:
			stats.Pending = r.Count
		case domain.StatusProcessing:
			stats.Processing = r.Count
		case domain.StatusPrinted:
			stats.Printed = r.Count
		case domain.StatusError:
			stats.Error = r.Count
		}
		stats.Total += r.Count
	}

	return stats, nil
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrapErr("ping print store", s.db.PingContext(ctx))
}
