package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// ErrNoDialog is returned by Resolve when no print dialog is open for the request.
var ErrNoDialog = errors.New("no print dialog open for request")

// DialogDriver prints through the operator's browser: the rendered document
// is handed to the page, and Execute blocks until the operator reports the
// outcome of the print dialog.
type DialogDriver struct {
	width int

	mu       sync.Mutex
	sessions map[string]*dialogSession
}

type dialogSession struct {
	doc    *Document
	result chan error
}

// NewDialogDriver creates a dialog driver rendering plain text receipts.
func NewDialogDriver(width int) *DialogDriver {
	return &DialogDriver{
		width:    width,
		sessions: make(map[string]*dialogSession),
	}
}

func (d *DialogDriver) Name() string {
	return "browser-dialog"
}

// IsConnected is always true: the browser is the printer.
func (d *DialogDriver) IsConnected(context.Context) bool {
	return true
}

func (d *DialogDriver) Render(payload domain.DocumentPayload) (*Document, error) {
	data, err := RenderText(payload, d.width)
	if err != nil {
		return nil, err
	}
	return &Document{ContentType: ContentTypeText, Data: data}, nil
}

// Open registers a dialog for doc so an early Resolve is not lost.
func (d *DialogDriver) Open(doc *Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[doc.RequestID]; !ok {
		d.sessions[doc.RequestID] = &dialogSession{doc: doc, result: make(chan error, 1)}
	}
}

// Execute waits for the operator's outcome or ctx.
func (d *DialogDriver) Execute(ctx context.Context, doc *Document) error {
	d.Open(doc)

	d.mu.Lock()
	session := d.sessions[doc.RequestID]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.sessions, doc.RequestID)
		d.mu.Unlock()
	}()

	select {
	case err := <-session.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: print dialog not confirmed: %v", domain.ErrPrinterExecutionFailed, ctx.Err())
	}
}

// Resolve reports the dialog outcome. A nil outcome means printed; anything
// else is recorded as an execution failure with its message.
func (d *DialogDriver) Resolve(requestID string, outcome error) error {
	d.mu.Lock()
	session, ok := d.sessions[requestID]
	d.mu.Unlock()
	if !ok {
		return ErrNoDialog
	}

	if outcome != nil && !errors.Is(outcome, domain.ErrPrinterExecutionFailed) && !errors.Is(outcome, domain.ErrPrinterNotConnected) {
		outcome = fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, outcome)
	}

	select {
	case session.result <- outcome:
		return nil
	default:
		return fmt.Errorf("print dialog for %s already resolved", requestID)
	}
}

// Document returns the document of an open dialog.
func (d *DialogDriver) Document(requestID string) (*Document, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[requestID]
	if !ok {
		return nil, false
	}
	return session.doc, true
}
