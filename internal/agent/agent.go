// Package agent runs the consumers of the print queue: an unattended
// standalone agent driving a receipt printer, and per-owner web monitors
// driven by an operator in a browser.
package agent

import (
	"context"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/notify"
)

// QueueStore is the part of the print request store agents use.
type QueueStore interface {
	ListPending(ctx context.Context, ownerID string) ([]*domain.PrintRequest, error)
	GetForOwner(ctx context.Context, ownerID, id string) (*domain.PrintRequest, error)
	Claim(ctx context.Context, id, claimedBy string) (bool, error)
	MarkPrinted(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
	Subscribe(ctx context.Context, ownerID string, fn notify.Handler) (func(), error)
	ExpireStale(ctx context.Context, ownerID string, olderThan time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// DeviceRegistry records heartbeats and detects competing agents.
type DeviceRegistry interface {
	Heartbeat(ctx context.Context, device domain.Device) error
	MultipleDevicesDetected(ctx context.Context, ownerID string, window time.Duration) (bool, int, error)
}

// BatchResult summarizes a PrintAllPending run. Requests claimed by another
// agent in the meantime count toward Total only, as do requests that were
// printed but whose row ended up in another state (cancelled mid-print or
// store unreachable); Unrecorded counts the latter.
type BatchResult struct {
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Unrecorded int `json:"unrecorded,omitempty"`
	Total      int `json:"total"`
}

// Status is the connectivity snapshot of an agent.
type Status struct {
	DeviceID                string     `json:"device_id"`
	OwnerID                 string     `json:"owner_id"`
	Printer                 string     `json:"printer"`
	StoreReachable          bool       `json:"store_reachable"`
	PrinterConnected        bool       `json:"printer_connected"`
	MultipleDevicesDetected bool       `json:"multiple_devices_detected"`
	ActiveDevices           int        `json:"active_devices"`
	Suspended               bool       `json:"suspended,omitempty"`
	LastPollAt              *time.Time `json:"last_poll_at,omitempty"`
	LastError               string     `json:"last_error,omitempty"`
}
