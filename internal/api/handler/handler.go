package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    *storage.Store
	Devices  *storage.DeviceRegistry
	Monitors *agent.MonitorRegistry
	// LivenessWindow defaults to domain.DeviceLivenessWindow.
	LivenessWindow time.Duration
	// KeepAlive is the SSE comment interval; defaults to 15s.
	KeepAlive time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// respondError maps domain errors to HTTP statuses. Unexpected errors are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"

	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrPayloadRender):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrRequestNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrClaimLost):
		status, code = http.StatusConflict, "claim_lost"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, agent.ErrNotPrinting):
		status, code = http.StatusConflict, "not_printing"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, domain.ErrAuthExpired):
		status, code = http.StatusUnauthorized, "auth_expired"
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(status, gin.H{"error": code})
		return
	}

	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
