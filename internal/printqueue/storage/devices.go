package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/jmoiron/sqlx"
)

// DeviceRegistry records agent heartbeats so that two agents printing the
// same owner's queue can notice each other.
type DeviceRegistry struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewDeviceRegistry creates a registry. now defaults to time.Now.
func NewDeviceRegistry(db *sqlx.DB, logger *slog.Logger, now func() time.Time) *DeviceRegistry {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceRegistry{
		db:     db,
		logger: logger,
		now: func() time.Time {
			return now().UTC().Truncate(time.Microsecond)
		},
	}
}

// Heartbeat upserts the device row with the current time. Rows are keyed by
// owner and device, so one process serving several owners keeps a row per
// owner.
func (r *DeviceRegistry) Heartbeat(ctx context.Context, device domain.Device) error {
	if strings.TrimSpace(device.DeviceID) == "" || strings.TrimSpace(device.OwnerID) == "" {
		return fmt.Errorf("%w: device id and owner id are required", domain.ErrInvalidRequest)
	}

	query := r.db.Rebind(`
		INSERT INTO active_devices (device_id, owner_id, hostname, agent_kind, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, device_id) DO UPDATE
		SET hostname = excluded.hostname,
		    agent_kind = excluded.agent_kind,
		    last_active_at = excluded.last_active_at
	`)

	_, err := r.db.ExecContext(ctx, query,
		device.DeviceID, device.OwnerID, device.Hostname, device.AgentKind, r.now())
	if err != nil {
		return wrapErr("record device heartbeat", err)
	}

	r.logger.Debug("Device heartbeat recorded",
		slog.String("device_id", device.DeviceID),
		slog.String("owner_id", device.OwnerID),
	)

	return nil
}

// List returns every device ever seen for the owner, most recent first.
func (r *DeviceRegistry) List(ctx context.Context, ownerID string) ([]domain.Device, error) {
	query := r.db.Rebind(`
		SELECT device_id, owner_id, hostname, agent_kind, last_active_at
		FROM active_devices
		WHERE owner_id = ?
		ORDER BY last_active_at DESC, device_id ASC
	`)

	return r.selectDevices(ctx, "list devices", query, ownerID)
}

// ListActive returns the owner's devices whose heartbeat is within window.
func (r *DeviceRegistry) ListActive(ctx context.Context, ownerID string, window time.Duration) ([]domain.Device, error) {
	return r.listActiveAt(ctx, ownerID, r.now(), window)
}

func (r *DeviceRegistry) listActiveAt(ctx context.Context, ownerID string, now time.Time, window time.Duration) ([]domain.Device, error) {
	query := r.db.Rebind(`
		SELECT device_id, owner_id, hostname, agent_kind, last_active_at
		FROM active_devices
		WHERE owner_id = ?
		  AND last_active_at >= ?
		ORDER BY last_active_at DESC, device_id ASC
	`)

	return r.selectDevices(ctx, "list active devices", query, ownerID, now.Add(-window))
}

// MultipleDevicesDetected reports whether at least two devices of the owner
// have been alive within window, along with how many were found.
func (r *DeviceRegistry) MultipleDevicesDetected(ctx context.Context, ownerID string, window time.Duration) (bool, int, error) {
	now := r.now()
	devices, err := r.listActiveAt(ctx, ownerID, now, window)
	if err != nil {
		return false, 0, err
	}
	count := domain.CountAlive(devices, now, window)
	return count >= 2, count, nil
}

func (r *DeviceRegistry) selectDevices(ctx context.Context, op, query string, args ...interface{}) ([]domain.Device, error) {
	var rows []deviceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(op, err)
	}

	devices := make([]domain.Device, len(rows))
	for i := range rows {
		devices[i] = rows[i].toDomain()
	}
	return devices, nil
}
