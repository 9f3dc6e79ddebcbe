package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"github.com/lib/pq"
)

// wrapErr annotates a database error, tagging connectivity failures with
// domain.ErrStoreUnavailable so callers can tell them apart from data errors.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 08: connection exception, 57: operator intervention (e.g. admin shutdown)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}

	return false
}
