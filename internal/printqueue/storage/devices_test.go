package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceRegistry_MultipleDevicesDetected(t *testing.T) {
	window := domain.DeviceLivenessWindow

	tests := []struct {
		name      string
		ages      []time.Duration
		wantMulti bool
		wantCount int
	}{
		{name: "two recent heartbeats", ages: []time.Duration{119 * time.Second, 60 * time.Second}, wantMulti: true, wantCount: 2},
		{name: "two stale heartbeats", ages: []time.Duration{121 * time.Second, 130 * time.Second}, wantMulti: false, wantCount: 0},
		{name: "one of each", ages: []time.Duration{10 * time.Second, 5 * time.Minute}, wantMulti: false, wantCount: 1},
		{name: "exactly at the window", ages: []time.Duration{window, 0}, wantMulti: true, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFixture(t)
			ctx := context.Background()
			registry := NewDeviceRegistry(f.db, nil, f.clock.Now)

			base := f.clock.Now()
			for i, age := range tt.ages {
				at := base.Add(-age)
				beat := NewDeviceRegistry(f.db, nil, func() time.Time { return at })
				require.NoError(t, beat.Heartbeat(ctx, domain.Device{
					DeviceID: "device-" + string(rune('a'+i)),
					OwnerID:  "owner-a",
				}))
			}

			multi, count, err := registry.MultipleDevicesDetected(ctx, "owner-a", window)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMulti, multi)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestDeviceRegistry_HeartbeatUpserts(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	registry := NewDeviceRegistry(f.db, nil, f.clock.Now)

	device := domain.Device{DeviceID: "device-a", OwnerID: "owner-a", Hostname: "kasir-1", AgentKind: "standalone"}
	require.NoError(t, registry.Heartbeat(ctx, device))

	f.clock.Advance(30 * time.Second)
	device.Hostname = "kasir-2"
	require.NoError(t, registry.Heartbeat(ctx, device))

	require.NoError(t, registry.Heartbeat(ctx, domain.Device{DeviceID: "device-b", OwnerID: "owner-b"}))

	devices, err := registry.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "kasir-2", devices[0].Hostname)
	assert.Equal(t, "standalone", devices[0].AgentKind)
	assert.True(t, devices[0].LastActiveAt.Equal(f.clock.Now()))

	multi, _, err := registry.MultipleDevicesDetected(ctx, "owner-a", domain.DeviceLivenessWindow)
	require.NoError(t, err)
	assert.False(t, multi)
}

func TestDeviceRegistry_SharedDeviceKeepsRowPerOwner(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	registry := NewDeviceRegistry(f.db, nil, f.clock.Now)

	require.NoError(t, registry.Heartbeat(ctx, domain.Device{DeviceID: "kasir-standalone", OwnerID: "owner-a", AgentKind: "standalone"}))
	for _, owner := range []string{"owner-a", "owner-b", "owner-a", "owner-b"} {
		f.clock.Advance(time.Second)
		require.NoError(t, registry.Heartbeat(ctx, domain.Device{DeviceID: "api-service-1", OwnerID: owner, AgentKind: "web-monitor"}))
	}

	devicesA, err := registry.List(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, devicesA, 2)
	assert.Equal(t, "api-service-1", devicesA[0].DeviceID)
	assert.Equal(t, "owner-a", devicesA[0].OwnerID)

	devicesB, err := registry.List(ctx, "owner-b")
	require.NoError(t, err)
	require.Len(t, devicesB, 1)
	assert.Equal(t, "api-service-1", devicesB[0].DeviceID)

	multi, count, err := registry.MultipleDevicesDetected(ctx, "owner-a", domain.DeviceLivenessWindow)
	require.NoError(t, err)
	assert.True(t, multi)
	assert.Equal(t, 2, count)

	multi, _, err = registry.MultipleDevicesDetected(ctx, "owner-b", domain.DeviceLivenessWindow)
	require.NoError(t, err)
	assert.False(t, multi)
}

func TestDeviceRegistry_HeartbeatValidation(t *testing.T) {
	f := setupFixture(t)
	registry := NewDeviceRegistry(f.db, nil, nil)

	err := registry.Heartbeat(context.Background(), domain.Device{OwnerID: "owner-a"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
