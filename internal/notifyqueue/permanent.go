package notifyqueue

import "errors"

// PermanentError marks delivery failures that must not be retried.
// Params: wrapped root cause.
// Returns: typed non-retryable error marker.
type PermanentError struct {
	Err error
}

// Error returns the wrapped error message.
// Params: none.
// Returns: string representation.
func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks the error as non-retryable.
// Params: none.
// Returns: true.
func (PermanentError) Permanent() bool {
	return true
}

// MarkPermanent wraps an error with the permanent marker.
// Params: source error.
// Returns: wrapped error or nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether the error carries the permanent marker.
// Params: candidate error.
// Returns: true when the worker must not retry.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
