package domain

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a print request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPrinted    Status = "printed"
	StatusError      Status = "error"
)

// CancelledByUser is the error message recorded when an operator cancels a job.
const CancelledByUser = "cancelled by user"

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPrinted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPrinted || s == StatusError
}

// PrintRequest is one queued document waiting to be physically printed.
// RawPayload is written once on enqueue and never updated.
type PrintRequest struct {
	ID              string
	NoteID          string
	OwnerID         string
	RawPayload      json.RawMessage
	Status          Status
	ErrorMessage    string
	ClaimedBy       string
	ResubmittedFrom string
	CreatedAt       time.Time
	ClaimedAt       *time.Time
	ProcessedAt     *time.Time
}

// Document decodes the stored snapshot.
func (r *PrintRequest) Document() (DocumentPayload, error) {
	return UnmarshalPayload(r.RawPayload)
}

// PendingEvent announces that a new pending request exists for an owner.
type PendingEvent struct {
	RequestID string    `json:"request_id"`
	OwnerID   string    `json:"owner_id"`
	NoteID    string    `json:"note_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventFor builds the notification announcing req.
func EventFor(req *PrintRequest) PendingEvent {
	return PendingEvent{
		RequestID: req.ID,
		OwnerID:   req.OwnerID,
		NoteID:    req.NoteID,
		CreatedAt: req.CreatedAt,
	}
}

// QueueStats counts an owner's requests per status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Printed    int `json:"printed"`
	Error      int `json:"error"`
	Total      int `json:"total"`
}
