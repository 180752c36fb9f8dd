package provider

import "errors"

// Common errors returned by provider operations.
//
// These are checked with errors.Is for error handling decisions; only
// ErrTransient is safe to blanket-retry.
var (
	// ErrAuthRequired is returned when the operation needs a valid
	// credential token and none is available or the backend rejected it.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotFound is returned when the remote object does not exist.
	ErrNotFound = errors.New("remote object not found")

	// ErrRemoteConflict is returned when a conditional write detects a
	// remote revision mismatch. It is never auto-resolved.
	ErrRemoteConflict = errors.New("remote revision mismatch")

	// ErrTransient is returned for network failures and rate limits.
	// Eligible for automatic retry with backoff at the scheduler level.
	ErrTransient = errors.New("transient provider failure")

	// ErrNotRegistered is returned when no constructor is registered
	// for a provider id.
	ErrNotRegistered = errors.New("provider not registered")
)

// IsRetryable returns true if the error is likely to succeed on retry.
// Only transient network and rate-limit failures qualify; conflicts and
// missing objects never resolve themselves.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsUserActionRequired returns true if the error requires user
// intervention to resolve.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	// Conflicts need an explicit user choice.
	if errors.Is(err, ErrRemoteConflict) {
		return true
	}

	// Re-authentication needs interactive consent.
	if errors.Is(err, ErrAuthRequired) {
		return true
	}

	return false
}

// IsNotFound returns true if the error means the remote object does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatal returns true if the error indicates the current operation
// sequence cannot continue against this backend.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotRegistered)
}
