package dto

import (
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

type PendingResponse struct {
	PrintRequests []PrintRequestDTO `json:"print_requests"`
	Count         int               `json:"count"`
}

func ToPendingResponse(reqs []*domain.PrintRequest) PendingResponse {
	return PendingResponse{PrintRequests: ToPrintRequestDTOs(reqs), Count: len(reqs)}
}

// PrintDocumentResponse carries the rendered document for the browser's
// print dialog.
type PrintDocumentResponse struct {
	RequestID   string `json:"request_id"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// CompletePrintRequest reports the print dialog outcome. Error is recorded
// on the request when Printed is false.
type CompletePrintRequest struct {
	Printed *bool  `json:"printed" binding:"required"`
	Error   string `json:"error"`
}

type UpdateSettingsRequest struct {
	Visible   *bool `json:"visible"`
	Minimized *bool `json:"minimized"`
}

type DeviceDTO struct {
	DeviceID     string `json:"device_id"`
	Hostname     string `json:"hostname,omitempty"`
	AgentKind    string `json:"agent_kind"`
	LastActiveAt string `json:"last_active_at"`
	Active       bool   `json:"active"`
}

type ListDevicesResponse struct {
	Devices                 []DeviceDTO `json:"devices"`
	ActiveDevices           int         `json:"active_devices"`
	MultipleDevicesDetected bool        `json:"multiple_devices_detected"`
}
