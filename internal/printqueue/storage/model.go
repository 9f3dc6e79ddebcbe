package storage

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

const requestColumns = `id, note_id, owner_id, document_payload, status, error_message,
	claimed_by, claimed_at, processed_at, resubmitted_from, created_at`

type printRequestRow struct {
	ID              string         `db:"id"`
	NoteID          string         `db:"note_id"`
	OwnerID         string         `db:"owner_id"`
	DocumentPayload []byte         `db:"document_payload"`
	Status          string         `db:"status"`
	ErrorMessage    sql.NullString `db:"error_message"`
	ClaimedBy       sql.NullString `db:"claimed_by"`
	ClaimedAt       sql.NullTime   `db:"claimed_at"`
	ProcessedAt     sql.NullTime   `db:"processed_at"`
	ResubmittedFrom sql.NullString `db:"resubmitted_from"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *printRequestRow) toDomain() *domain.PrintRequest {
	req := &domain.PrintRequest{
		ID:              r.ID,
		NoteID:          r.NoteID,
		OwnerID:         r.OwnerID,
		RawPayload:      r.DocumentPayload,
		Status:          domain.Status(r.Status),
		ErrorMessage:    r.ErrorMessage.String,
		ClaimedBy:       r.ClaimedBy.String,
		ResubmittedFrom: r.ResubmittedFrom.String,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.ClaimedAt.Valid {
		t := r.ClaimedAt.Time.UTC()
		req.ClaimedAt = &t
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time.UTC()
		req.ProcessedAt = &t
	}
	return req
}

func rowsToDomain(rows []printRequestRow) []*domain.PrintRequest {
	out := make([]*domain.PrintRequest, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

type deviceRow struct {
	DeviceID     string    `db:"device_id"`
	OwnerID      string    `db:"owner_id"`
	Hostname     string    `db:"hostname"`
	AgentKind    string    `db:"agent_kind"`
	LastActiveAt time.Time `db:"last_active_at"`
}

func (r *deviceRow) toDomain() domain.Device {
	return domain.Device{
		DeviceID:     r.DeviceID,
		OwnerID:      r.OwnerID,
		Hostname:     r.Hostname,
		AgentKind:    r.AgentKind,
		LastActiveAt: r.LastActiveAt.UTC(),
	}
}
