package agent

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRegistry(t *testing.T) {
	f := setupFixture(t)
	settings, err := OpenSettingsStore("")
	require.NoError(t, err)

	r := NewMonitorRegistry(context.Background(), MonitorRegistryConfig{
		DeviceID:     "api-1",
		Store:        f.store,
		Devices:      f.devices,
		Settings:     settings,
		Logger:       f.logger,
		PollInterval: time.Hour,
	})
	t.Cleanup(r.Close)

	a := r.Get(testOwner)
	assert.Same(t, a, r.Get(testOwner))
	b := r.Get("owner-b")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())

	r.Suspend(testOwner)
	assert.True(t, a.Status().Suspended)
	assert.False(t, b.Status().Suspended)

	// a new authenticated call wakes the monitor up
	assert.Same(t, a, r.Get(testOwner))
	assert.False(t, a.Status().Suspended)

	r.Suspend("owner-unknown")
	assert.Equal(t, 2, r.Len())
}

func TestMonitorRegistry_SharesSettings(t *testing.T) {
	f := setupFixture(t)
	settings, err := OpenSettingsStore("")
	require.NoError(t, err)

	r := NewMonitorRegistry(context.Background(), MonitorRegistryConfig{
		DeviceID: "api-1",
		Store:    f.store,
		Settings: settings,
		Logger:   f.logger,
	})
	t.Cleanup(r.Close)

	require.NoError(t, r.Get(testOwner).UpdateSettings(MonitorSettings{Visible: false}))
	assert.Equal(t, MonitorSettings{}, settings.Get(testOwner))
	assert.Equal(t, DefaultMonitorSettings(), r.Get("owner-b").Settings())
}

func TestMonitorRegistry_OwnersSharingDeviceKeepTheirHeartbeats(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	settings, err := OpenSettingsStore("")
	require.NoError(t, err)

	require.NoError(t, f.devices.Heartbeat(ctx, domain.Device{
		DeviceID:  "kasir-standalone",
		OwnerID:   testOwner,
		AgentKind: KindStandalone,
	}))

	r := NewMonitorRegistry(ctx, MonitorRegistryConfig{
		DeviceID:     "api-service-1",
		Store:        f.store,
		Devices:      f.devices,
		Settings:     settings,
		Logger:       f.logger,
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(r.Close)

	_, stopA := r.Get(testOwner).Watch()
	t.Cleanup(stopA)
	_, stopB := r.Get("owner-b").Watch()
	t.Cleanup(stopB)

	assert.Eventually(t, func() bool {
		devicesA, errA := f.devices.List(ctx, testOwner)
		devicesB, errB := f.devices.List(ctx, "owner-b")
		return errA == nil && errB == nil && len(devicesA) == 2 && len(devicesB) == 1
	}, timeoutShort, tick)

	// both monitors keep beating; owner-a must never lose its row
	for i := 0; i < 20; i++ {
		multi, count, err := f.devices.MultipleDevicesDetected(ctx, testOwner, domain.DeviceLivenessWindow)
		require.NoError(t, err)
		assert.True(t, multi)
		assert.Equal(t, 2, count)
		time.Sleep(5 * time.Millisecond)
	}

	devicesB, err := f.devices.List(ctx, "owner-b")
	require.NoError(t, err)
	require.Len(t, devicesB, 1)
	assert.Equal(t, "api-service-1", devicesB[0].DeviceID)
	assert.Equal(t, KindWebMonitor, devicesB[0].AgentKind)
}
