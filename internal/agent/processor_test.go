package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(f *fixture, driver *fakeDriver, maxAttempts int) *Processor {
	return NewProcessor(&ProcessorConfig{
		Store:       f.store,
		Driver:      driver,
		DeviceID:    "device-1",
		Logger:      f.logger,
		JobTimeout:  time.Second,
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Millisecond,
	})
}

func TestProcessor_Process(t *testing.T) {
	notConnected := domain.NewRetryableError(fmt.Errorf("%w: dial tcp: connection refused", domain.ErrPrinterNotConnected))
	jam := fmt.Errorf("%w: paper jam", domain.ErrPrinterExecutionFailed)

	tests := []struct {
		name         string
		maxAttempts  int
		failures     []error
		wantOutcome  Outcome
		wantStatus   domain.Status
		wantExecuted int
		wantMessage  string
	}{
		{
			name:         "prints on first attempt",
			maxAttempts:  3,
			wantOutcome:  OutcomePrinted,
			wantStatus:   domain.StatusPrinted,
			wantExecuted: 1,
		},
		{
			name:         "retries a transient failure",
			maxAttempts:  3,
			failures:     []error{notConnected},
			wantOutcome:  OutcomePrinted,
			wantStatus:   domain.StatusPrinted,
			wantExecuted: 2,
		},
		{
			name:         "gives up after max attempts",
			maxAttempts:  2,
			failures:     []error{notConnected, notConnected, notConnected},
			wantOutcome:  OutcomeFailed,
			wantStatus:   domain.StatusError,
			wantExecuted: 2,
			wantMessage:  "printer not connected: dial tcp: connection refused",
		},
		{
			name:         "does not retry a permanent failure",
			maxAttempts:  3,
			failures:     []error{jam},
			wantOutcome:  OutcomeFailed,
			wantStatus:   domain.StatusError,
			wantExecuted: 1,
			wantMessage:  "printer execution failed: paper jam",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFixture(t)
			driver := newFakeDriver()
			p := newTestProcessor(f, driver, tt.maxAttempts)

			req := f.enqueue(t, "note-1")
			driver.FailOnce(req.ID, tt.failures...)

			outcome := p.Process(context.Background(), req)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Len(t, driver.Executed(), tt.wantExecuted)

			got := f.status(t, req.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantMessage, got.ErrorMessage)
			assert.Equal(t, "device-1", got.ClaimedBy)
			assert.NotNil(t, got.ProcessedAt)
		})
	}
}

func TestProcessor_SkipsRequestClaimedElsewhere(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	p := newTestProcessor(f, driver, 1)

	req := f.enqueue(t, "note-1")
	claimed, err := f.store.Claim(context.Background(), req.ID, "device-2")
	require.NoError(t, err)
	require.True(t, claimed)

	assert.Equal(t, OutcomeSkipped, p.Process(context.Background(), req))
	assert.Empty(t, driver.Executed())

	got := f.status(t, req.ID)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, "device-2", got.ClaimedBy)
}

func TestProcessor_RenderFailureMarksError(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	p := newTestProcessor(f, driver, 1)

	payload := samplePayload("INV-1")
	payload.Items = nil
	req := f.enqueuePayload(t, "note-1", payload)

	doc, outcome, err := p.Begin(context.Background(), req)
	assert.Nil(t, doc)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, domain.ErrPayloadRender)
	assert.Empty(t, driver.Executed())

	got := f.status(t, req.ID)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Contains(t, got.ErrorMessage, "no line items")
}

func TestProcessor_FinishRecordsAfterCancellation(t *testing.T) {
	f := setupFixture(t)
	p := newTestProcessor(f, newFakeDriver(), 1)

	req := f.enqueue(t, "note-1")
	claimed, err := f.store.Claim(context.Background(), req.ID, "device-1")
	require.NoError(t, err)
	require.True(t, claimed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeFailed, p.Finish(ctx, req, errors.New("operator closed the dialog")))
	assert.Equal(t, domain.StatusError, f.status(t, req.ID).Status)
}

func TestProcessor_BeginReturnsClaimed(t *testing.T) {
	f := setupFixture(t)
	driver := newFakeDriver()
	p := newTestProcessor(f, driver, 1)

	req := f.enqueue(t, "note-1")
	doc, outcome, err := p.Begin(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, OutcomeClaimed, outcome)
	assert.Equal(t, req.ID, doc.RequestID)
	assert.Empty(t, driver.Executed())
	assert.Equal(t, domain.StatusProcessing, f.status(t, req.ID).Status)
}

func TestProcessor_FinishAfterCancelIsUnrecorded(t *testing.T) {
	f := setupFixture(t)
	p := newTestProcessor(f, newFakeDriver(), 1)
	ctx := context.Background()

	req := f.enqueue(t, "note-1")
	_, _, err := p.Begin(ctx, req)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkError(ctx, req.ID, domain.CancelledByUser))

	assert.Equal(t, OutcomeUnrecorded, p.Finish(ctx, req, nil))

	got := f.status(t, req.ID)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, domain.CancelledByUser, got.ErrorMessage)
	assert.Zero(t, f.notes.Count())
}

func TestErrorMessage(t *testing.T) {
	inner := fmt.Errorf("%w: timeout", domain.ErrPrinterNotConnected)
	assert.Equal(t, "printer not connected: timeout", ErrorMessage(domain.NewRetryableError(inner)))
	assert.Equal(t, "boom", ErrorMessage(errors.New("boom")))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "deferred", OutcomeDeferred.String())
	assert.Equal(t, "printed", OutcomePrinted.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unrecorded", OutcomeUnrecorded.String())
	assert.Equal(t, "claimed", OutcomeClaimed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
