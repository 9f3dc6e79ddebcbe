package domain

import "errors"

var (
	// ErrStoreUnavailable is returned when the backend cannot be reached
	ErrStoreUnavailable = errors.New("print store unavailable")

	// ErrRequestNotFound is returned when a print request does not exist for the owner
	ErrRequestNotFound = errors.New("print request not found")

	// ErrClaimLost is returned when another agent already claimed the request
	ErrClaimLost = errors.New("print request already claimed")

	// ErrInvalidTransition is returned when a status change would move a request backwards
	ErrInvalidTransition = errors.New("invalid print request status transition")

	// ErrInvalidRequest is returned when an enqueue call is missing required fields
	ErrInvalidRequest = errors.New("invalid print request")

	// ErrPrinterNotConnected is returned when the printer cannot be reached
	ErrPrinterNotConnected = errors.New("printer not connected")

	// ErrPrinterExecutionFailed is returned when the printer rejects or drops a job
	ErrPrinterExecutionFailed = errors.New("printer execution failed")

	// ErrPayloadRender is returned when a document snapshot is malformed or incomplete
	ErrPayloadRender = errors.New("document payload cannot be rendered")

	// ErrAuthExpired is returned when the session token has expired
	ErrAuthExpired = errors.New("authentication expired")
)

// RetryableError wraps printer errors that may clear up on a second attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is worth another in-job attempt
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
