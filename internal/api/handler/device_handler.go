package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/print-relay/internal/api/auth"
	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/gin-gonic/gin"
)

// DeviceHandler lists the printing devices seen for an owner.
type DeviceHandler struct {
	logger  *slog.Logger
	devices *storage.DeviceRegistry
	window  time.Duration
	now     func() time.Time
}

// NewDeviceHandler creates a new DeviceHandler instance
func NewDeviceHandler(deps *Dependencies) *DeviceHandler {
	window := deps.LivenessWindow
	if window <= 0 {
		window = domain.DeviceLivenessWindow
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &DeviceHandler{
		logger:  deps.Logger,
		devices: deps.Devices,
		window:  window,
		now:     now,
	}
}

// List handles GET /api/v1/devices
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	now := h.now()
	out := make([]dto.DeviceDTO, len(devices))
	for i, d := range devices {
		out[i] = dto.DeviceDTO{
			DeviceID:     d.DeviceID,
			Hostname:     d.Hostname,
			AgentKind:    d.AgentKind,
			LastActiveAt: d.LastActiveAt.Format(time.RFC3339),
			Active:       d.Alive(now, h.window),
		}
	}

	c.JSON(http.StatusOK, dto.ListDevicesResponse{
		Devices:                 out,
		ActiveDevices:           domain.CountAlive(devices, now, h.window),
		MultipleDevicesDetected: domain.MultipleDevicesDetected(devices, now, h.window),
	})
}
