package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request conflicts with the current resource state.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrLockTimeout indicates a row lock could not be acquired in time. Callers may retry.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrIntegrityViolation indicates stored aggregates disagree with their derivation.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// IsRetryable reports whether err is a transient failure worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
