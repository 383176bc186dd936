package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an absent check, contact, rule, medium, or window.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a rejected mutation such as an out-of-order append
	// or an end operation against a missing window.
	ErrConflict = errors.New("conflict")
	// ErrStoreUnavailable indicates an unreachable persistence backend.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports a rejected payload before any mutation is applied.
// Params: offending field and wrapped cause.
// Returns: typed error for boundary status mapping.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError wraps a cause with the offending field name.
// Params: field name and cause.
// Returns: validation error value.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// Error renders the field-qualified message.
// Params: none.
// Returns: string representation.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
}

// Unwrap exposes the cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the error chain carries a ValidationError.
// Params: candidate error.
// Returns: true for rejected-payload failures.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// MarkStoreUnavailable tags a backend transport failure with ErrStoreUnavailable.
// Params: backend error.
// Returns: wrapped error or nil.
func MarkStoreUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, err.Error())
}
