package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

type CreatePrintRequest struct {
	NoteID   string                  `json:"note_id" binding:"required"`
	Document *domain.DocumentPayload `json:"document" binding:"required"`
}

type ListPrintRequestsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListPrintRequestsResponse struct {
	PrintRequests []PrintRequestDTO `json:"print_requests"`
	NextCursor    string            `json:"next_cursor,omitempty"`
}

type PrintRequestDTO struct {
	ID              string          `json:"id"`
	NoteID          string          `json:"note_id"`
	OwnerID         string          `json:"owner_id"`
	Status          string          `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ClaimedBy       string          `json:"claimed_by,omitempty"`
	ResubmittedFrom string          `json:"resubmitted_from,omitempty"`
	Document        json.RawMessage `json:"document"`
	CreatedAt       string          `json:"created_at"`
	ClaimedAt       string          `json:"claimed_at,omitempty"`
	ProcessedAt     string          `json:"processed_at,omitempty"`
}

func ToPrintRequestDTO(req *domain.PrintRequest) PrintRequestDTO {
	return PrintRequestDTO{
		ID:              req.ID,
		NoteID:          req.NoteID,
		OwnerID:         req.OwnerID,
		Status:          string(req.Status),
		ErrorMessage:    req.ErrorMessage,
		ClaimedBy:       req.ClaimedBy,
		ResubmittedFrom: req.ResubmittedFrom,
		Document:        req.RawPayload,
		CreatedAt:       req.CreatedAt.Format(time.RFC3339Nano),
		ClaimedAt:       formatTime(req.ClaimedAt),
		ProcessedAt:     formatTime(req.ProcessedAt),
	}
}

func ToPrintRequestDTOs(reqs []*domain.PrintRequest) []PrintRequestDTO {
	out := make([]PrintRequestDTO, len(reqs))
	for i, req := range reqs {
		out[i] = ToPrintRequestDTO(req)
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
