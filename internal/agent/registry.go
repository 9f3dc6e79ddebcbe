package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MonitorRegistryConfig holds the shared dependencies of all web monitors.
type MonitorRegistryConfig struct {
	DeviceID      string
	Store         QueueStore
	Devices       DeviceRegistry
	Settings      *SettingsStore
	Logger        *slog.Logger
	PollInterval  time.Duration
	DialogTimeout time.Duration
	PrintWidth    int
}

// MonitorRegistry creates one WebMonitor per owner on first use and keeps it
// running until Close.
type MonitorRegistry struct {
	cfg    MonitorRegistryConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	monitors map[string]*WebMonitor
	wg       sync.WaitGroup
}

// NewMonitorRegistry creates an empty registry. Monitors live until ctx is
// done or Close is called.
func NewMonitorRegistry(ctx context.Context, cfg MonitorRegistryConfig) *MonitorRegistry {
	ctx, cancel := context.WithCancel(ctx)
	return &MonitorRegistry{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		monitors: make(map[string]*WebMonitor),
	}
}

// Get returns the owner's monitor, starting it if needed. A suspended
// monitor is resumed: the caller just proved a valid session.
func (r *MonitorRegistry) Get(ownerID string) *WebMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[ownerID]; ok {
		m.Resume()
		return m
	}

	m := NewWebMonitor(&MonitorConfig{
		OwnerID:       ownerID,
		DeviceID:      r.cfg.DeviceID,
		Store:         r.cfg.Store,
		Devices:       r.cfg.Devices,
		Settings:      r.cfg.Settings,
		Logger:        r.cfg.Logger,
		PollInterval:  r.cfg.PollInterval,
		DialogTimeout: r.cfg.DialogTimeout,
		PrintWidth:    r.cfg.PrintWidth,
	})
	r.monitors[ownerID] = m

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		m.Run(r.ctx)
	}()

	r.cfg.Logger.Info("Web monitor started", slog.String("owner_id", ownerID))
	return m
}

// Suspend pauses the owner's monitor if it exists.
func (r *MonitorRegistry) Suspend(ownerID string) {
	r.mu.Lock()
	m, ok := r.monitors[ownerID]
	r.mu.Unlock()
	if ok {
		m.Suspend()
	}
}

// Len returns the number of running monitors.
func (r *MonitorRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// Close stops every monitor.
func (r *MonitorRegistry) Close() {
	r.cancel()
	r.wg.Wait()
}
