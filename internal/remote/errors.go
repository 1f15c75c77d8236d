package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the backend's failure categories. Anything not covered
// by these and not transient is an unexpected backend response.
var (
	// ErrNotFound: the addressed row does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrConflict: a unique key constraint rejected the write.
	ErrConflict = errors.New("remote: conflict")

	// ErrPermission: the backend refused the credentials or the operation.
	ErrPermission = errors.New("remote: permission denied")
)

// transientError marks failures that are expected to clear on retry:
// network drops, timeouts, and backend 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("remote: transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as a transient remote failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a failure the caller should treat as
// temporary: fall back to cache for reads, keep the entry queued for writes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
