package inference

import (
	"context"
	"errors"
)

var (
	// ErrModelUnavailable means the model exists but cannot be invoked with
	// the configured credentials (not enabled, no access, or unknown).
	ErrModelUnavailable = errors.New("model is not available")

	// ErrEmptyResponse means the backend returned no usable content.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying. Providers wrap client-side
// failures (bad request, auth, quota configuration) so retry loops fail fast.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether a failed call may succeed on a later attempt.
// Context cancellation and permanent errors are final; everything else is
// assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *permanentError
	return !errors.As(err, &perm)
}
