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
)

const KindWebMonitor = "web-monitor"

// ErrNotPrinting is returned by Complete when no print dialog is open for
// the request on this monitor.
var ErrNotPrinting = errors.New("request is not being printed by this monitor")

// MonitorConfig holds web monitor configuration
type MonitorConfig struct {
	OwnerID      string
	DeviceID     string
	Store        QueueStore
	Devices      DeviceRegistry
	Settings     *SettingsStore
	Logger       *slog.Logger
	PollInterval time.Duration
	// DialogTimeout bounds how long a claimed request waits for the operator.
	DialogTimeout time.Duration
	PrintWidth    int
}

// WebMonitor serves one owner's queue to a browser. It never prints on its
// own: the operator picks a request, the browser shows the print dialog and
// reports back.
type WebMonitor struct {
	ownerID   string
	device    domain.Device
	store     QueueStore
	devices   DeviceRegistry
	settings  *SettingsStore
	dialog    *printer.DialogDriver
	processor *Processor
	loop      *Loop
	logger    *slog.Logger
	timeout   time.Duration

	mu          sync.Mutex
	snapshot    []*domain.PrintRequest
	watchers    map[int]chan []*domain.PrintRequest
	nextWatcher int
	printing    map[string]chan Outcome
}

// NewWebMonitor creates a monitor; call Run to start its loop.
func NewWebMonitor(cfg *MonitorConfig) *WebMonitor {
	logger := cfg.Logger.With(
		slog.String("component", "web_monitor"),
		slog.String("owner_id", cfg.OwnerID),
	)
	dialog := printer.NewDialogDriver(cfg.PrintWidth)

	m := &WebMonitor{
		ownerID: cfg.OwnerID,
		device: domain.Device{
			DeviceID:  cfg.DeviceID,
			OwnerID:   cfg.OwnerID,
			Hostname:  Hostname(),
			AgentKind: KindWebMonitor,
		},
		store:    cfg.Store,
		devices:  cfg.Devices,
		settings: cfg.Settings,
		dialog:   dialog,
		logger:   logger,
		timeout:  orDefault(cfg.DialogTimeout, 5*time.Minute),
		watchers: make(map[int]chan []*domain.PrintRequest),
		printing: make(map[string]chan Outcome),
	}
	if m.settings == nil {
		m.settings, _ = OpenSettingsStore("")
	}

	m.processor = NewProcessor(&ProcessorConfig{
		Store:      cfg.Store,
		Driver:     dialog,
		DeviceID:   cfg.DeviceID,
		Logger:     logger,
		JobTimeout: m.timeout,
	})
	m.loop = NewLoop(cfg.OwnerID, orDefault(cfg.PollInterval, 30*time.Second), cfg.Store, m.refresh, logger)

	return m
}

// Run polls until ctx is done.
func (m *WebMonitor) Run(ctx context.Context) {
	m.loop.Run(ctx)
}

// refresh reloads the pending list and pushes it to watchers when it changed.
func (m *WebMonitor) refresh(ctx context.Context) error {
	pending, err := m.store.ListPending(ctx, m.ownerID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	changed := !sameRequests(m.snapshot, pending)
	m.snapshot = pending
	watching := len(m.watchers) > 0
	if changed {
		for _, ch := range m.watchers {
			offer(ch, pending)
		}
	}
	m.mu.Unlock()

	// an open page is a printing device for conflict detection
	if watching && m.devices != nil {
		if err := m.devices.Heartbeat(ctx, m.device); err != nil {
			m.logger.Warn("Failed to send heartbeat", slog.String("error", err.Error()))
		}
	}

	return nil
}

func sameRequests(a, b []*domain.PrintRequest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// offer replaces whatever the watcher has not read yet with the latest list.
func offer(ch chan []*domain.PrintRequest, pending []*domain.PrintRequest) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- pending:
	default:
	}
}

// Refresh asks the loop for an immediate cycle.
func (m *WebMonitor) Refresh() {
	m.loop.Trigger()
}

// Pending lists the owner's pending requests straight from the store.
func (m *WebMonitor) Pending(ctx context.Context) ([]*domain.PrintRequest, error) {
	return m.store.ListPending(ctx, m.ownerID)
}

// Watch streams pending lists, starting with the current one, until the
// returned cancel is called.
func (m *WebMonitor) Watch() (<-chan []*domain.PrintRequest, func()) {
	ch := make(chan []*domain.PrintRequest, 1)

	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	if m.snapshot != nil {
		ch <- m.snapshot
	}
	m.mu.Unlock()

	m.Refresh()

	return ch, func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// BeginPrint claims the request for this monitor and returns the document
// for the browser's print dialog. The row stays processing until Complete,
// Cancel or the dialog timeout.
func (m *WebMonitor) BeginPrint(ctx context.Context, id string) (*printer.Document, error) {
	req, err := m.store.GetForOwner(ctx, m.ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: request is %s", domain.ErrClaimLost, req.Status)
	}

	doc, _, err := m.processor.Begin(ctx, req)
	if err != nil {
		m.Refresh()
		return nil, err
	}

	result := make(chan Outcome, 1)
	m.mu.Lock()
	m.printing[id] = result
	m.mu.Unlock()

	m.dialog.Open(doc)

	go func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		outcome := m.processor.Finish(jobCtx, req, m.dialog.Execute(jobCtx, doc))

		m.mu.Lock()
		delete(m.printing, id)
		m.mu.Unlock()

		result <- outcome
		m.Refresh()
	}()

	m.logger.Info("Print dialog opened", slog.String("request_id", id))
	m.Refresh()

	return doc, nil
}

// Complete records the dialog outcome reported by the browser and returns
// the resolved request. A nil printErr means the document was printed.
func (m *WebMonitor) Complete(ctx context.Context, id string, printErr error) (*domain.PrintRequest, error) {
	m.mu.Lock()
	result, ok := m.printing[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotPrinting
	}

	if err := m.dialog.Resolve(id, printErr); err != nil {
		return nil, ErrNotPrinting
	}

	select {
	case <-result:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return m.store.GetForOwner(ctx, m.ownerID, id)
}

// Cancel marks the request as cancelled by the user, closing its print
// dialog if one is open.
func (m *WebMonitor) Cancel(ctx context.Context, id string) error {
	if _, err := m.store.GetForOwner(ctx, m.ownerID, id); err != nil {
		return err
	}

	if err := m.store.MarkError(ctx, id, domain.CancelledByUser); err != nil {
		return err
	}

	// the dialog goroutine finds the row already in error and leaves it
	_ = m.dialog.Resolve(id, errors.New(domain.CancelledByUser))

	m.logger.Info("Print request cancelled", slog.String("request_id", id))
	m.Refresh()
	return nil
}

// Settings returns the persisted presentation state.
func (m *WebMonitor) Settings() MonitorSettings {
	return m.settings.Get(m.ownerID)
}

// UpdateSettings persists the presentation state.
func (m *WebMonitor) UpdateSettings(s MonitorSettings) error {
	return m.settings.Put(m.ownerID, s)
}

// Suspend pauses polling, e.g. after the operator's session expired.
func (m *WebMonitor) Suspend() {
	if !m.loop.Suspended() {
		m.logger.Warn("Web monitor suspended")
	}
	m.loop.Suspend()
}

// Resume restarts polling.
func (m *WebMonitor) Resume() {
	m.loop.Resume()
}

// Status reports the monitor's connectivity snapshot.
func (m *WebMonitor) Status() Status {
	status := Status{
		DeviceID:         m.device.DeviceID,
		OwnerID:          m.ownerID,
		Printer:          m.dialog.Name(),
		PrinterConnected: true,
		StoreReachable:   true,
		Suspended:        m.loop.Suspended(),
	}
	if last, err := m.loop.LastPoll(); !last.IsZero() {
		status.LastPollAt = &last
		if err != nil {
			status.LastError = err.Error()
			status.StoreReachable = !errors.Is(err, domain.ErrStoreUnavailable)
		}
	}
	return status
}
