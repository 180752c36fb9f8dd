// Package confirm is the interactive confirmation boundary.
//
// Any operation requiring user consent (authentication, destructive
// delete, name-collision resolution) calls out through a Confirmer and
// treats it as an opaque asynchronous gate. Cancellation is an explicit
// result, not an error thrown through unrelated call chains: callers
// check ErrCancelled and turn it into a clean no-op.
package confirm

import (
	"context"
	"errors"
)

// ErrCancelled is returned when the user declines a confirmation.
// It propagates as a clean no-op and is never logged as a failure.
var ErrCancelled = errors.New("confirmation cancelled")

// RequestType identifies what is being confirmed.
type RequestType string

const (
	// TypeStripName warns that an item name was altered by sanitization.
	TypeStripName RequestType = "stripName"

	// TypePathConflict warns that an item's path collides with another.
	TypePathConflict RequestType = "pathConflict"

	// TypeFolderDeletion asks before deleting a folder and its files.
	TypeFolderDeletion RequestType = "folderDeletion"

	// TypeTrashDeletion asks before deleting items already in the trash.
	TypeTrashDeletion RequestType = "trashDeletion"

	// TypeProviderConsent asks for interactive provider authorization.
	TypeProviderConsent RequestType = "providerConsent"
)

// Request describes a confirmation to present to the user.
type Request struct {
	Type     RequestType
	ItemName string
	Message  string
}

// Result is the outcome of a confirmation.
type Result struct {
	// Confirmed is false when the user cancelled.
	Confirmed bool

	// Value carries an optional user-provided value (for example an
	// application id entered during provider consent).
	Value string
}

// Confirmer presents confirmations and reports the outcome.
//
// Implementations must return a Result with Confirmed=false for a user
// cancellation rather than an error; errors are reserved for transport
// failures of the confirmation channel itself.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (Result, error)
}

// AutoApprove confirms everything without user interaction. It is used
// for background operations and in tests.
type AutoApprove struct{}

// Confirm implements Confirmer.
func (AutoApprove) Confirm(ctx context.Context, req Request) (Result, error) {
	return Result{Confirmed: true}, nil
}

// AutoDecline cancels everything. Useful in tests exercising the
// cancellation path.
type AutoDecline struct{}

// Confirm implements Confirmer.
func (AutoDecline) Confirm(ctx context.Context, req Request) (Result, error) {
	return Result{Confirmed: false}, nil
}
