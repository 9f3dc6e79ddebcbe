package printer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// FileDriver writes each document into a spool directory. Useful on
// stations where another program picks the files up, and in development.
type FileDriver struct {
	dir    string
	format string
	width  int
	logger *slog.Logger
	now    func() time.Time
}

// NewFileDriver creates a driver writing to dir. format is "escpos" or "text".
func NewFileDriver(dir, format string, width int, logger *slog.Logger) *FileDriver {
	if format == "" {
		format = "text"
	}
	return &FileDriver{dir: dir, format: format, width: width, logger: logger, now: time.Now}
}

func (d *FileDriver) Name() string {
	return "file:" + d.dir
}

// IsConnected reports whether the spool directory exists.
func (d *FileDriver) IsConnected(context.Context) bool {
	info, err := os.Stat(d.dir)
	return err == nil && info.IsDir()
}

func (d *FileDriver) Render(payload domain.DocumentPayload) (*Document, error) {
	if d.format == "escpos" {
		data, err := RenderESCPOS(payload, d.width)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: ContentTypeESCPOS, Data: data}, nil
	}

	data, err := RenderText(payload, d.width)
	if err != nil {
		return nil, err
	}
	return &Document{ContentType: ContentTypeText, Data: data}, nil
}

// Execute writes the document atomically: a temp file renamed into place.
func (d *FileDriver) Execute(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, err)
	}
	if !d.IsConnected(ctx) {
		return fmt.Errorf("%w: spool directory %s missing", domain.ErrPrinterNotConnected, d.dir)
	}

	ext := ".txt"
	if doc.ContentType == ContentTypeESCPOS {
		ext = ".bin"
	}
	name := fmt.Sprintf("%s-%s%s", d.now().UTC().Format("20060102T150405"), doc.RequestID, ext)

	tmp, err := os.CreateTemp(d.dir, ".spool-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, err)
	}

	path := filepath.Join(d.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPrinterExecutionFailed, err)
	}

	d.logger.Info("Document spooled", slog.String("path", path))
	return nil
}
