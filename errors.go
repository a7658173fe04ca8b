package occasync

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Request errors
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limit exceeded")

	// Auth errors
	ErrMissingSecret = errors.New("signing secret is not configured")

	// Backend errors
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrBackendUnavailable = errors.New("backend unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if an error is a uniqueness/conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnauthorized checks if an error means the caller has no valid identity
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if an error means a valid identity lacks permission
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsRateLimited checks if an error is a rate-limit rejection
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
