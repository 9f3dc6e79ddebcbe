package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/print-relay/internal/printer"
	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// Outcome is what happened to one request in one processing attempt.
type Outcome int

const (
	// OutcomeSkipped: another agent claimed it first.
	OutcomeSkipped Outcome = iota
	// OutcomeDeferred: the store could not be reached; nothing changed.
	OutcomeDeferred
	OutcomePrinted
	OutcomeFailed
	// OutcomeUnrecorded: the driver printed but the row could not be marked
	// printed, e.g. because it was cancelled mid-print.
	OutcomeUnrecorded
	// OutcomeClaimed: claimed and rendered, not yet executed.
	OutcomeClaimed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeferred:
		return "deferred"
	case OutcomePrinted:
		return "printed"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnrecorded:
		return "unrecorded"
	case OutcomeClaimed:
		return "claimed"
	}
	return "unknown"
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Store      QueueStore
	Driver     printer.Driver
	DeviceID   string
	Logger     *slog.Logger
	JobTimeout time.Duration
	// MaxAttempts bounds Execute calls per job for retryable printer errors.
	MaxAttempts int
	RetryDelay  time.Duration
}

// Processor moves a single request through claim, render, execute and
// resolve. It never returns per-job errors; they end up on the row.
type Processor struct {
	store       QueueStore
	driver      printer.Driver
	deviceID    string
	logger      *slog.Logger
	jobTimeout  time.Duration
	maxAttempts int
	retryDelay  time.Duration
}

// NewProcessor creates a processor with defaults for zero values.
func NewProcessor(cfg *ProcessorConfig) *Processor {
	p := &Processor{
		store:       cfg.Store,
		driver:      cfg.Driver,
		deviceID:    cfg.DeviceID,
		logger:      cfg.Logger,
		jobTimeout:  cfg.JobTimeout,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
	if p.jobTimeout <= 0 {
		p.jobTimeout = 30 * time.Second
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.retryDelay <= 0 {
		p.retryDelay = time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process handles one pending request end to end.
func (p *Processor) Process(ctx context.Context, req *domain.PrintRequest) Outcome {
	doc, outcome, err := p.Begin(ctx, req)
	if err != nil {
		return outcome
	}
	return p.Finish(ctx, req, p.execute(ctx, doc))
}

// Begin claims req and renders it, returning OutcomeClaimed on success. A
// non-nil error means the request is not this agent's to print, and the
// outcome says what happened to it:
// domain.ErrClaimLost when another agent won the claim, a store error when
// the claim could not be attempted, or a render error already recorded on
// the row.
func (p *Processor) Begin(ctx context.Context, req *domain.PrintRequest) (*printer.Document, Outcome, error) {
	claimed, err := p.store.Claim(ctx, req.ID, p.deviceID)
	if err != nil {
		p.logger.Warn("Failed to claim print request",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
		return nil, OutcomeDeferred, err
	}
	if !claimed {
		p.logger.Debug("Print request claimed elsewhere, skipping",
			slog.String("request_id", req.ID),
		)
		return nil, OutcomeSkipped, domain.ErrClaimLost
	}

	doc, err := p.render(req)
	if err != nil {
		return nil, p.Finish(ctx, req, err), err
	}
	return doc, OutcomeClaimed, nil
}

func (p *Processor) render(req *domain.PrintRequest) (*printer.Document, error) {
	payload, err := req.Document()
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	doc, err := p.driver.Render(payload)
	if err != nil {
		if !errors.Is(err, domain.ErrPayloadRender) {
			err = fmt.Errorf("%w: %v", domain.ErrPayloadRender, err)
		}
		return nil, err
	}
	doc.RequestID = req.ID
	return doc, nil
}

// execute runs the driver with a per-attempt timeout, retrying retryable
// failures up to maxAttempts.
func (p *Processor) execute(ctx context.Context, doc *printer.Document) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
		err = p.driver.Execute(jobCtx, doc)
		cancel()

		if err == nil || !domain.IsRetryable(err) || attempt == p.maxAttempts {
			return err
		}

		p.logger.Warn("Printer attempt failed, retrying",
			slog.String("request_id", doc.RequestID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.maxAttempts),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, ctx.Err())
		case <-time.After(p.retryDelay):
		}
	}
	return err
}

// Finish records the result of a claimed request: printed when execErr is
// nil, error with a readable message otherwise. OutcomePrinted is returned
// only once the row is actually marked printed.
func (p *Processor) Finish(ctx context.Context, req *domain.PrintRequest, execErr error) Outcome {
	// a cancelled job context must not prevent recording the outcome
	ctx = context.WithoutCancel(ctx)

	if execErr == nil {
		if err := p.store.MarkPrinted(ctx, req.ID); err != nil {
			p.logger.Error("Printed but failed to mark print request printed",
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
			return OutcomeUnrecorded
		}
		return OutcomePrinted
	}

	message := ErrorMessage(execErr)
	p.logger.Error("Print request failed",
		slog.String("request_id", req.ID),
		slog.String("driver", p.driver.Name()),
		slog.String("error", message),
	)

	if err := p.store.MarkError(ctx, req.ID, message); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// cancelled while the dialog was open
			p.logger.Debug("Print request already resolved",
				slog.String("request_id", req.ID),
			)
		} else {
			p.logger.Error("Failed to mark print request error",
				slog.String("request_id", req.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return OutcomeFailed
}

// ErrorMessage is the human-readable text stored on a failed request.
func ErrorMessage(err error) string {
	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		return retryable.Err.Error()
	}
	return err.Error()
}
