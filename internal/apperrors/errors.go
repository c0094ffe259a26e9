package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the session and storage layers. Handlers translate
// these into the {"code","message"} payloads the web UI expects.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("invalid input")
)

// RateLimitedError is returned when a request exceeds its category budget.
type RateLimitedError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Category, e.RetryAfter.Round(time.Second))
}

// StorageError wraps a disk or database failure. The wrapped error is kept
// for logging; user-facing messages never include it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failing operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRateLimited reports whether err is a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Code maps an error to the stable code string used in API responses.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := IsRateLimited(err); ok {
		return "rate_limited"
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case IsStorage(err):
		return "storage_error"
	default:
		return "internal_error"
	}
}
