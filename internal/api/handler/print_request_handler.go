package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/print-relay/internal/api/auth"
	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/gin-gonic/gin"
)

// PrintRequestHandler serves the producer side of the queue and its history.
type PrintRequestHandler struct {
	logger *slog.Logger
	store  *storage.Store
}

// NewPrintRequestHandler creates a new PrintRequestHandler instance
func NewPrintRequestHandler(deps *Dependencies) *PrintRequestHandler {
	return &PrintRequestHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}

// Create handles POST /api/v1/print-requests
func (h *PrintRequestHandler) Create(c *gin.Context) {
	var req dto.CreatePrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := req.Document.Validate(); err != nil {
		respondError(c, h.logger, err)
		return
	}

	created, err := h.store.Enqueue(c.Request.Context(), req.NoteID, auth.OwnerID(c), *req.Document)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToPrintRequestDTO(created))
}

// Get handles GET /api/v1/print-requests/:id
func (h *PrintRequestHandler) Get(c *gin.Context) {
	req, err := h.store.GetForOwner(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToPrintRequestDTO(req))
}

// List handles GET /api/v1/print-requests
// Newest first, paginated with an opaque cursor.
func (h *PrintRequestHandler) List(c *gin.Context) {
	var req dto.ListPrintRequestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := domain.Status(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Unknown status " + req.Status,
		})
		return
	}

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid cursor",
		})
		return
	}

	reqs, err := h.store.List(c.Request.Context(), storage.ListFilter{
		OwnerID:  auth.OwnerID(c),
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(reqs) > req.PageSize
	if hasMore {
		reqs = reqs[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := reqs[len(reqs)-1]
		nextCursor = EncodeCursor(&storage.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListPrintRequestsResponse{
		PrintRequests: dto.ToPrintRequestDTOs(reqs),
		NextCursor:    nextCursor,
	})
}

// Stats handles GET /api/v1/print-requests/stats
func (h *PrintRequestHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Resubmit handles POST /api/v1/print-requests/:id/resubmit
// Copies an errored request into a new pending one.
func (h *PrintRequestHandler) Resubmit(c *gin.Context) {
	req, err := h.store.Resubmit(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToPrintRequestDTO(req))
}
