package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

const (
	DefaultPort           = 9100
	DefaultConnectTimeout = 5 * time.Second
	defaultIOTimeout      = 10 * time.Second
)

// TCPConfig describes a network receipt printer.
type TCPConfig struct {
	Name           string
	Address        string
	Port           int
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	Width          int
	Copies         int
}

// TCPDriver prints ESC/POS over a raw TCP socket, one connection per job.
type TCPDriver struct {
	config TCPConfig
	dialer *net.Dialer
	logger *slog.Logger
}

// NewTCPDriver creates a driver with defaults applied to zero fields.
func NewTCPDriver(cfg TCPConfig, logger *slog.Logger) *TCPDriver {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Copies < 1 {
		cfg.Copies = 1
	}
	if cfg.Name == "" {
		cfg.Name = "escpos"
	}

	return &TCPDriver{
		config: cfg,
		dialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
		logger: logger,
	}
}

func (d *TCPDriver) Name() string {
	return d.config.Name
}

func (d *TCPDriver) address() string {
	return net.JoinHostPort(d.config.Address, strconv.Itoa(d.config.Port))
}

// IsConnected dials the printer and asks for its real-time status.
func (d *TCPDriver) IsConnected(ctx context.Context) bool {
	conn, err := d.dial(ctx)
	if err != nil {
		return false
	}
	defer conn.Close()

	return d.probe(conn) == nil
}

func (d *TCPDriver) Render(payload domain.DocumentPayload) (*Document, error) {
	data, err := RenderESCPOS(payload, d.config.Width)
	if err != nil {
		return nil, err
	}
	return &Document{ContentType: ContentTypeESCPOS, Data: data}, nil
}

// Execute sends the document Copies times over a fresh connection.
func (d *TCPDriver) Execute(ctx context.Context, doc *Document) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrPrinterNotConnected, err))
	}
	defer conn.Close()

	if err := d.probe(conn); err != nil {
		return err
	}

	deadline := time.Now().Add(d.config.IOTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetWriteDeadline(deadline)

	for i := 0; i < d.config.Copies; i++ {
		if _, err := conn.Write(doc.Data); err != nil {
			return fmt.Errorf("%w: write to %s: %v", domain.ErrPrinterExecutionFailed, d.address(), err)
		}
	}

	d.logger.Info("Document sent to printer",
		slog.String("printer", d.config.Name),
		slog.String("address", d.address()),
		slog.String("request_id", doc.RequestID),
		slog.Int("bytes", len(doc.Data)),
		slog.Int("copies", d.config.Copies),
	)

	return nil
}

func (d *TCPDriver) dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.address())
	if err != nil {
		d.logger.Debug("Failed to connect to printer",
			slog.String("address", d.address()),
			slog.Any("error", err),
		)
		return nil, err
	}
	return conn, nil
}

// probe sends DLE EOT 1 and checks the offline bit of the reply.
func (d *TCPDriver) probe(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(d.config.ConnectTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(dleStatus); err != nil {
		return domain.NewRetryableError(fmt.Errorf("%w: status request: %v", domain.ErrPrinterNotConnected, err))
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return domain.NewRetryableError(fmt.Errorf("%w: no status reply", domain.ErrPrinterNotConnected))
		}
		return domain.NewRetryableError(fmt.Errorf("%w: status reply: %v", domain.ErrPrinterNotConnected, err))
	}

	if status[0]&statusOffline != 0 {
		return fmt.Errorf("%w: printer reports offline (status 0x%02x)", domain.ErrPrinterNotConnected, status[0])
	}
	return nil
}
