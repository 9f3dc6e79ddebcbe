package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/api/auth"
	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/gin-gonic/gin"
)

// MonitorHandler is the HTTP face of the per-owner web monitors.
type MonitorHandler struct {
	logger    *slog.Logger
	monitors  *agent.MonitorRegistry
	keepAlive time.Duration
}

// NewMonitorHandler creates a new MonitorHandler instance
func NewMonitorHandler(deps *Dependencies) *MonitorHandler {
	keepAlive := deps.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &MonitorHandler{
		logger:    deps.Logger,
		monitors:  deps.Monitors,
		keepAlive: keepAlive,
	}
}

func (h *MonitorHandler) monitor(c *gin.Context) *agent.WebMonitor {
	return h.monitors.Get(auth.OwnerID(c))
}

// Pending handles GET /api/v1/monitor/pending
func (h *MonitorHandler) Pending(c *gin.Context) {
	pending, err := h.monitor(c).Pending(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToPendingResponse(pending))
}

// Events handles GET /api/v1/monitor/events
// Streams the pending list as server-sent events whenever it changes.
func (h *MonitorHandler) Events(c *gin.Context) {
	updates, stop := h.monitor(c).Watch()
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case pending := <-updates:
			c.SSEvent("pending", dto.ToPendingResponse(pending))
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// Print handles POST /api/v1/monitor/jobs/:id/print
// Claims the request and returns the document for the print dialog.
func (h *MonitorHandler) Print(c *gin.Context) {
	doc, err := h.monitor(c).BeginPrint(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.PrintDocumentResponse{
		RequestID:   doc.RequestID,
		ContentType: doc.ContentType,
		Content:     string(doc.Data),
	})
}

// Complete handles POST /api/v1/monitor/jobs/:id/complete
// Records the dialog outcome and returns the resolved request.
func (h *MonitorHandler) Complete(c *gin.Context) {
	var req dto.CompletePrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var printErr error
	if !*req.Printed {
		message := req.Error
		if message == "" {
			message = "print dialog failed"
		}
		printErr = errors.New(message)
	}

	resolved, err := h.monitor(c).Complete(c.Request.Context(), c.Param("id"), printErr)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToPrintRequestDTO(resolved))
}

// Cancel handles POST /api/v1/monitor/jobs/:id/cancel
func (h *MonitorHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.monitor(c).Cancel(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            id,
		"status":        domain.StatusError,
		"error_message": domain.CancelledByUser,
	})
}

// GetSettings handles GET /api/v1/monitor/settings
func (h *MonitorHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor(c).Settings())
}

// UpdateSettings handles PUT /api/v1/monitor/settings
// Fields left out of the body keep their current value.
func (h *MonitorHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	m := h.monitor(c)
	settings := m.Settings()
	if req.Visible != nil {
		settings.Visible = *req.Visible
	}
	if req.Minimized != nil {
		settings.Minimized = *req.Minimized
	}

	if err := m.UpdateSettings(settings); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}
