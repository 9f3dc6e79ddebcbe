// Package sqlite opens single-station databases with the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// Config holds SQLite connection configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// DSN renders the driver connection string. Timestamps are written in
// SQLite's own format so they sort and compare as text.
func (c *Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if c.Path != Memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_time_format", "sqlite")

	path := c.Path
	if path == Memory {
		path = "file::memory:"
	} else if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + q.Encode()
}

// Client wraps a SQLite database handle.
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens the database, creating parent directories as needed.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if config.Path != Memory {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open("sqlite", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// One writer at a time; an in-memory database also vanishes with its
	// connection, so the pool must never grow past one.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	logger.Info("Opened SQLite database", slog.String("path", config.Path))

	return &Client{db: db, logger: logger}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the database
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite: %w", err)
	}
	return nil
}
