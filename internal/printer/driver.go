// Package printer turns document snapshots into printer command streams and
// delivers them to a physical or virtual printer.
package printer

import (
	"context"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

const (
	ContentTypeESCPOS = "application/vnd.escpos"
	ContentTypeText   = "text/plain; charset=utf-8"
)

// Document is a rendered command stream ready to be executed.
type Document struct {
	RequestID   string `json:"request_id"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Driver is implemented by every printer binding.
//
// Execute returns errors wrapping domain.ErrPrinterNotConnected or
// domain.ErrPrinterExecutionFailed; transient ones are additionally wrapped
// in domain.RetryableError. Render returns errors wrapping
// domain.ErrPayloadRender.
type Driver interface {
	Name() string
	IsConnected(ctx context.Context) bool
	Render(payload domain.DocumentPayload) (*Document, error)
	Execute(ctx context.Context, doc *Document) error
}
