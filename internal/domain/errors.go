package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock held by another run")

	// ErrTransient marks failures worth retrying: rate limiting, 5xx, transport errors.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks client errors that abandon the current item only.
	ErrPermanent = errors.New("permanent failure")
	// ErrSchema marks a response whose shape does not match what the caller expects.
	ErrSchema = errors.New("schema mismatch")
	// ErrOffsetCapExceeded is returned when an upstream refuses an offset beyond its
	// own pagination limit. Paginators treat it as truncation, not failure.
	ErrOffsetCapExceeded = errors.New("offset cap exceeded")
)

// TransientError is a failed request that may succeed if repeated.
type TransientError struct {
	StatusCode int // 0 for transport errors
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return fmt.Sprintf("transient: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable always reports true; it exists so callers can test for the capability.
func (e *TransientError) Retryable() bool { return true }

func (e *TransientError) Unwrap() []error {
	errs := []error{ErrTransient}
	if e.StatusCode == 429 {
		errs = append(errs, ErrRateLimited)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// PermanentError is a client error (4xx other than 429).
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *PermanentError) Unwrap() []error {
	if e.StatusCode == 404 {
		return []error{ErrPermanent, ErrNotFound}
	}
	return []error{ErrPermanent}
}

// SchemaError reports an unexpected response shape.
type SchemaError struct {
	What string
	Err  error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return "schema: " + e.What
	}
	return fmt.Sprintf("schema: %s: %v", e.What, e.Err)
}

func (e *SchemaError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSchema}
	}
	return []error{ErrSchema, e.Err}
}

// IsRetryable reports whether err carries a retryable failure.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
