package agent

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printer"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/cuongbtq/print-relay/internal/printqueue/notify"
	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/cuongbtq/print-relay/shared/sqlite"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-a"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingNotes struct {
	mu    sync.Mutex
	notes []string
}

func (n *countingNotes) MarkPrinted(_ context.Context, _, noteID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, noteID)
	return nil
}

func (n *countingNotes) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type fixture struct {
	store   *storage.Store
	devices *storage.DeviceRegistry
	broker  *notify.Broker
	notes   *countingNotes
	clock   *testClock
	logger  *slog.Logger
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	logger := discardLogger()
	client, err := sqlite.NewClient(&sqlite.Config{Path: sqlite.Memory}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	db := client.GetDB()
	require.NoError(t, storage.EnsureSchema(context.Background(), db))

	f := &fixture{
		broker: notify.NewBroker(logger),
		notes:  &countingNotes{},
		clock:  &testClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
		logger: logger,
	}
	t.Cleanup(func() { f.broker.Close() })

	f.store = storage.NewStore(&storage.Config{
		DB:       db,
		Logger:   logger,
		Notes:    f.notes,
		Notifier: f.broker,
		Now:      f.clock.Now,
	})
	f.devices = storage.NewDeviceRegistry(db, logger, f.clock.Now)
	return f
}

func samplePayload(number string) domain.DocumentPayload {
	return domain.DocumentPayload{
		NoteNumber: number,
		Date:       "2026-04-01",
		Shop:       domain.Shop{Name: "Toko Sinar"},
		Customer:   domain.Customer{Name: "Budi"},
		Items: []domain.LineItem{
			{Description: "Kopi susu", Quantity: 2, UnitPrice: 15000, Total: 30000},
		},
		Payment: domain.Payment{Method: "cash", Paid: 30000},
		Totals:  domain.Totals{Subtotal: 30000, Total: 30000},
	}
}

func (f *fixture) enqueue(t *testing.T, noteID string) *domain.PrintRequest {
	t.Helper()
	return f.enqueuePayload(t, noteID, samplePayload("INV-"+noteID))
}

func (f *fixture) enqueuePayload(t *testing.T, noteID string, payload domain.DocumentPayload) *domain.PrintRequest {
	t.Helper()
	f.clock.Advance(time.Second)
	req, err := f.store.Enqueue(context.Background(), noteID, testOwner, payload)
	require.NoError(t, err)
	return req
}

func (f *fixture) status(t *testing.T, id string) *domain.PrintRequest {
	t.Helper()
	req, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return req
}

// fakeDriver renders plain text and fails Execute with queued errors per
// request id.
type fakeDriver struct {
	mu        sync.Mutex
	errs      map[string][]error
	always    map[string]error
	executed  []string
	connected bool

	// delay and onExecute are set before the driver is used.
	delay     time.Duration
	onExecute func(requestID string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		errs:      make(map[string][]error),
		always:    make(map[string]error),
		connected: true,
	}
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) IsConnected(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDriver) Render(payload domain.DocumentPayload) (*printer.Document, error) {
	data, err := printer.RenderText(payload, printer.DefaultWidth)
	if err != nil {
		return nil, err
	}
	return &printer.Document{ContentType: printer.ContentTypeText, Data: data}, nil
}

func (d *fakeDriver) Execute(_ context.Context, doc *printer.Document) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.onExecute != nil {
		d.onExecute(doc.RequestID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.executed = append(d.executed, doc.RequestID)
	if err, ok := d.always[doc.RequestID]; ok {
		return err
	}
	if queued := d.errs[doc.RequestID]; len(queued) > 0 {
		d.errs[doc.RequestID] = queued[1:]
		return queued[0]
	}
	return nil
}

// FailOnce queues errs for the next Execute calls of id.
func (d *fakeDriver) FailOnce(id string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[id] = append(d.errs[id], errs...)
}

func (d *fakeDriver) FailAlways(id string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.always[id] = err
}

func (d *fakeDriver) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}
