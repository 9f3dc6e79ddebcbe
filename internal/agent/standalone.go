package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/printer"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/robfig/cron/v3"
)

const KindStandalone = "standalone"

// StandaloneConfig holds standalone agent configuration
type StandaloneConfig struct {
	OwnerID           string
	DeviceID          string
	Store             QueueStore
	Devices           DeviceRegistry
	Driver            printer.Driver
	Logger            *slog.Logger
	PollInterval      time.Duration
	Concurrency       int
	JobTimeout        time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	ConflictInterval  time.Duration
	LivenessWindow    time.Duration
	StaleClaimAfter   time.Duration
}

// StandaloneAgent prints an owner's queue on a locally attached printer
// without anyone watching.
type StandaloneAgent struct {
	ownerID         string
	device          domain.Device
	store           QueueStore
	devices         DeviceRegistry
	driver          printer.Driver
	logger          *slog.Logger
	processor       *Processor
	pool            *Pool
	loop            *Loop
	scheduler       *cron.Cron
	heartbeatEvery  time.Duration
	conflictEvery   time.Duration
	livenessWindow  time.Duration
	staleClaimAfter time.Duration

	mu             sync.RWMutex
	multiple       bool
	activeDevices  int
	storeReachable bool
	conflicts      chan bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStandaloneAgent wires the processor, pool and loop.
func NewStandaloneAgent(cfg *StandaloneConfig) *StandaloneAgent {
	a := &StandaloneAgent{
		ownerID: cfg.OwnerID,
		device: domain.Device{
			DeviceID:  cfg.DeviceID,
			OwnerID:   cfg.OwnerID,
			Hostname:  Hostname(),
			AgentKind: KindStandalone,
		},
		store:           cfg.Store,
		devices:         cfg.Devices,
		driver:          cfg.Driver,
		logger:          cfg.Logger.With(slog.String("component", "standalone_agent")),
		scheduler:       cron.New(),
		heartbeatEvery:  orDefault(cfg.HeartbeatInterval, 30*time.Second),
		conflictEvery:   orDefault(cfg.ConflictInterval, time.Minute),
		livenessWindow:  orDefault(cfg.LivenessWindow, domain.DeviceLivenessWindow),
		staleClaimAfter: cfg.StaleClaimAfter,
		storeReachable:  true,
		conflicts:       make(chan bool, 1),
	}

	a.processor = NewProcessor(&ProcessorConfig{
		Store:       cfg.Store,
		Driver:      cfg.Driver,
		DeviceID:    cfg.DeviceID,
		Logger:      a.logger,
		JobTimeout:  cfg.JobTimeout,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
	a.pool = NewPool(cfg.Concurrency, a.processor.Process, a.logger)
	a.loop = NewLoop(cfg.OwnerID, orDefault(cfg.PollInterval, 5*time.Second), cfg.Store, a.dispatch, a.logger)
	// a freed worker pulls the next backlog row without waiting for a tick
	a.pool.OnRelease(a.loop.Trigger)

	return a
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start registers the device, recovers abandoned claims and begins
// printing. It returns once everything is running.
func (a *StandaloneAgent) Start(ctx context.Context) error {
	a.logger.Info("Starting standalone agent",
		slog.String("owner_id", a.ownerID),
		slog.String("device_id", a.device.DeviceID),
		slog.String("printer", a.driver.Name()),
	)

	if a.staleClaimAfter > 0 {
		if _, err := a.store.ExpireStale(ctx, a.ownerID, a.staleClaimAfter); err != nil {
			a.logger.Warn("Failed to expire abandoned requests", slog.String("error", err.Error()))
		}
	}

	a.heartbeat(ctx)
	a.checkConflicts(ctx)

	if _, err := a.scheduler.AddFunc(fmt.Sprintf("@every %s", a.heartbeatEvery), func() { a.heartbeat(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}
	if _, err := a.scheduler.AddFunc(fmt.Sprintf("@every %s", a.conflictEvery), func() { a.checkConflicts(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule conflict check: %w", err)
	}
	a.scheduler.Start()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	a.pool.Start(runCtx)
	go func() {
		defer close(a.done)
		a.loop.Run(runCtx)
	}()

	return nil
}

// Stop halts scheduling and waits for in-flight jobs.
func (a *StandaloneAgent) Stop() {
	a.logger.Info("Stopping standalone agent...")

	<-a.scheduler.Stop().Done()
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.pool.Stop()

	a.logger.Info("Standalone agent stopped")
}

// dispatch hands every pending request to the pool; a full pool defers the
// rest until a worker frees up or the next trigger.
func (a *StandaloneAgent) dispatch(ctx context.Context) error {
	pending, err := a.store.ListPending(ctx, a.ownerID)
	a.setStoreReachable(err)
	if err != nil {
		return err
	}

	for _, req := range pending {
		err := a.pool.Submit(req)
		switch {
		case err == nil, errors.Is(err, errInFlight):
			continue
		default:
			a.logger.Debug("Dispatch deferred",
				slog.Int("pending", len(pending)),
				slog.String("reason", err.Error()),
			)
			return nil
		}
	}
	return nil
}

// PrintAllPending prints every pending request one after another. A failing
// request never stops the batch.
func (a *StandaloneAgent) PrintAllPending(ctx context.Context) (BatchResult, error) {
	pending, err := a.store.ListPending(ctx, a.ownerID)
	a.setStoreReachable(err)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list pending requests: %w", err)
	}

	result := BatchResult{Total: len(pending)}
	for _, req := range pending {
		if ctx.Err() != nil {
			break
		}
		switch a.processor.Process(ctx, req) {
		case OutcomePrinted:
			result.Succeeded++
		case OutcomeFailed:
			result.Failed++
		case OutcomeUnrecorded:
			result.Unrecorded++
		}
	}

	a.logger.Info("Batch print finished",
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("unrecorded", result.Unrecorded),
		slog.Int("total", result.Total),
	)

	return result, nil
}

func (a *StandaloneAgent) heartbeat(ctx context.Context) {
	err := a.devices.Heartbeat(ctx, a.device)
	a.setStoreReachable(err)
	if err != nil {
		a.logger.Warn("Failed to send heartbeat", slog.String("error", err.Error()))
	}
}

func (a *StandaloneAgent) checkConflicts(ctx context.Context) {
	multiple, count, err := a.devices.MultipleDevicesDetected(ctx, a.ownerID, a.livenessWindow)
	a.setStoreReachable(err)
	if err != nil {
		a.logger.Warn("Failed to check for other devices", slog.String("error", err.Error()))
		return
	}

	a.mu.Lock()
	changed := multiple != a.multiple
	a.multiple = multiple
	a.activeDevices = count
	a.mu.Unlock()

	if multiple {
		a.logger.Warn("Multiple printing devices active for this owner",
			slog.String("owner_id", a.ownerID),
			slog.Int("active_devices", count),
		)
	}

	if changed {
		// keep only the latest state for a slow reader
		select {
		case <-a.conflicts:
		default:
		}
		a.conflicts <- multiple
	}
}

func (a *StandaloneAgent) setStoreReachable(err error) {
	reachable := err == nil || !errors.Is(err, domain.ErrStoreUnavailable)
	a.mu.Lock()
	a.storeReachable = reachable
	a.mu.Unlock()
}

// MultipleDevicesDetected reports the result of the last conflict check.
func (a *StandaloneAgent) MultipleDevicesDetected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.multiple
}

// ConflictChanges delivers the new state each time conflict detection flips.
func (a *StandaloneAgent) ConflictChanges() <-chan bool {
	return a.conflicts
}

// Status returns the agent's connectivity snapshot.
func (a *StandaloneAgent) Status(ctx context.Context) Status {
	a.mu.RLock()
	status := Status{
		DeviceID:                a.device.DeviceID,
		OwnerID:                 a.ownerID,
		Printer:                 a.driver.Name(),
		StoreReachable:          a.storeReachable,
		MultipleDevicesDetected: a.multiple,
		ActiveDevices:           a.activeDevices,
	}
	a.mu.RUnlock()

	status.PrinterConnected = a.driver.IsConnected(ctx)

	if last, err := a.loop.LastPoll(); !last.IsZero() {
		status.LastPollAt = &last
		if err != nil {
			status.LastError = err.Error()
		}
	}

	return status
}
