package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(f *fixture, deviceID string, driver *fakeDriver) *StandaloneAgent {
	return NewStandaloneAgent(&StandaloneConfig{
		OwnerID:           testOwner,
		DeviceID:          deviceID,
		Store:             f.store,
		Devices:           f.devices,
		Driver:            driver,
		Logger:            f.logger,
		PollInterval:      20 * time.Millisecond,
		Concurrency:       2,
		JobTimeout:        time.Second,
		MaxAttempts:       1,
		HeartbeatInterval: time.Hour,
		ConflictInterval:  time.Hour,
	})
}

func TestStandaloneAgent_PrintAllPendingContinuesPastFailures(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	a := newTestAgent(f, "device-1", driver)

	first := f.enqueue(t, "note-1")
	second := f.enqueue(t, "note-2")
	third := f.enqueue(t, "note-3")
	driver.FailAlways(second.ID, fmt.Errorf("%w: out of paper", domain.ErrPrinterExecutionFailed))

	result, err := a.PrintAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Succeeded: 2, Failed: 1, Total: 3}, result)

	assert.Equal(t, []string{first.ID, second.ID, third.ID}, driver.Executed())
	assert.Equal(t, domain.StatusPrinted, f.status(t, first.ID).Status)
	assert.Equal(t, domain.StatusError, f.status(t, second.ID).Status)
	assert.Equal(t, "printer execution failed: out of paper", f.status(t, second.ID).ErrorMessage)
	assert.Equal(t, domain.StatusPrinted, f.status(t, third.ID).Status)
	assert.Equal(t, 2, f.notes.Count())
}

func TestStandaloneAgent_PrintAllPendingEmptyQueue(t *testing.T) {
	f := setupFixture(t)
	a := newTestAgent(f, "device-1", newFakeDriver())

	result, err := a.PrintAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
}

func TestStandaloneAgent_PrintAllPendingCancelledMidPrint(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	a := newTestAgent(f, "device-1", driver)

	req := f.enqueue(t, "note-1")
	driver.onExecute = func(id string) {
		require.NoError(t, f.store.MarkError(context.Background(), id, domain.CancelledByUser))
	}

	result, err := a.PrintAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Unrecorded: 1, Total: 1}, result)

	got := f.status(t, req.ID)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, domain.CancelledByUser, got.ErrorMessage)
	assert.Zero(t, f.notes.Count())
}

func TestStandaloneAgent_DrainsBacklogWithoutWaitingForPoll(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	driver.delay = 20 * time.Millisecond

	a := NewStandaloneAgent(&StandaloneConfig{
		OwnerID:           testOwner,
		DeviceID:          "device-1",
		Store:             f.store,
		Devices:           f.devices,
		Driver:            driver,
		Logger:            f.logger,
		PollInterval:      time.Hour,
		Concurrency:       1,
		JobTimeout:        time.Second,
		MaxAttempts:       1,
		HeartbeatInterval: time.Hour,
		ConflictInterval:  time.Hour,
	})

	const n = 8
	for i := 0; i < n; i++ {
		f.enqueue(t, fmt.Sprintf("note-%d", i))
	}

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	assert.Eventually(t, func() bool {
		return f.notes.Count() == n
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, driver.Executed(), n)
}

func TestStandaloneAgent_TwoAgentsPrintEachRequestOnce(t *testing.T) {
	f := setupFixture(t)
	driverA, driverB := newFakeDriver(), newFakeDriver()
	agentA := newTestAgent(f, "device-a", driverA)
	agentB := newTestAgent(f, "device-b", driverB)

	const n = 8
	for i := 0; i < n; i++ {
		f.enqueue(t, fmt.Sprintf("note-%d", i))
	}

	var wg sync.WaitGroup
	results := make([]BatchResult, 2)
	for i, a := range []*StandaloneAgent{agentA, agentB} {
		wg.Add(1)
		go func(i int, a *StandaloneAgent) {
			defer wg.Done()
			result, err := a.PrintAllPending(context.Background())
			assert.NoError(t, err)
			results[i] = result
		}(i, a)
	}
	wg.Wait()

	assert.Equal(t, n, results[0].Succeeded+results[1].Succeeded)
	assert.Zero(t, results[0].Failed+results[1].Failed)

	printed := append(driverA.Executed(), driverB.Executed()...)
	assert.Len(t, printed, n)
	seen := make(map[string]bool)
	for _, id := range printed {
		assert.False(t, seen[id], "request %s printed twice", id)
		seen[id] = true
	}
	assert.Equal(t, n, f.notes.Count())
}

func TestStandaloneAgent_StartPrintsQueue(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	a := newTestAgent(f, "device-1", driver)

	first := f.enqueue(t, "note-1")

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	// enqueued while the loop is already running
	second := f.enqueue(t, "note-2")

	assert.Eventually(t, func() bool {
		return f.status(t, first.ID).Status == domain.StatusPrinted &&
			f.status(t, second.ID).Status == domain.StatusPrinted
	}, 2*time.Second, 10*time.Millisecond)

	devices, err := f.devices.List(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "device-1", devices[0].DeviceID)
	assert.Equal(t, KindStandalone, devices[0].AgentKind)
}

func TestStandaloneAgent_StartExpiresAbandonedClaims(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	req := f.enqueue(t, "note-1")
	claimed, err := f.store.Claim(ctx, req.ID, "crashed-device")
	require.NoError(t, err)
	require.True(t, claimed)
	f.clock.Advance(time.Hour)

	a := NewStandaloneAgent(&StandaloneConfig{
		OwnerID:           testOwner,
		DeviceID:          "device-1",
		Store:             f.store,
		Devices:           f.devices,
		Driver:            newFakeDriver(),
		Logger:            f.logger,
		HeartbeatInterval: time.Hour,
		ConflictInterval:  time.Hour,
		StaleClaimAfter:   10 * time.Minute,
	})
	require.NoError(t, a.Start(ctx))
	a.Stop()

	got := f.status(t, req.ID)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, "processing abandoned", got.ErrorMessage)
}

func TestStandaloneAgent_DetectsOtherDevices(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	require.NoError(t, f.devices.Heartbeat(ctx, domain.Device{
		DeviceID:  "device-other",
		OwnerID:   testOwner,
		AgentKind: KindWebMonitor,
	}))

	driver := newFakeDriver()
	a := newTestAgent(f, "device-1", driver)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(a.Stop)

	select {
	case multiple := <-a.ConflictChanges():
		assert.True(t, multiple)
	case <-time.After(time.Second):
		t.Fatal("no conflict change delivered")
	}
	assert.True(t, a.MultipleDevicesDetected())

	status := a.Status(ctx)
	assert.Equal(t, "device-1", status.DeviceID)
	assert.Equal(t, testOwner, status.OwnerID)
	assert.Equal(t, "fake", status.Printer)
	assert.True(t, status.StoreReachable)
	assert.True(t, status.PrinterConnected)
	assert.True(t, status.MultipleDevicesDetected)
	assert.Equal(t, 2, status.ActiveDevices)
}

func TestStandaloneAgent_SingleDeviceNoConflict(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	driver := newFakeDriver()
	driver.connected = false
	a := newTestAgent(f, "device-1", driver)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(a.Stop)

	assert.False(t, a.MultipleDevicesDetected())
	select {
	case <-a.ConflictChanges():
		t.Fatal("unexpected conflict change")
	default:
	}

	status := a.Status(ctx)
	assert.False(t, status.PrinterConnected)
	assert.Equal(t, 1, status.ActiveDevices)
}
