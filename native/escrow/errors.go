package escrow

import (
	"errors"
	"fmt"
)

// The engine reports every failure through one of these sentinels so callers
// can map outcomes without string matching. All of them are recoverable; the
// engine never enters an unusable state.
var (
	// ErrNotFound signals that no record exists for the order id.
	ErrNotFound = errors.New("escrow: order not found")
	// ErrAlreadyExists signals a creation collision on the order id.
	ErrAlreadyExists = errors.New("escrow: order already exists")
	// ErrUnauthorized signals that the caller fails the role check.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
	// ErrInvalidState signals that the record's status is outside the
	// operation's allowed set. Replays of a completed operation carry an
	// "already ..." detail so stale retries are distinguishable.
	ErrInvalidState = errors.New("escrow: operation not allowed in current status")
	// ErrTransferFailed wraps a ledger-level settlement failure. Neither the
	// record nor any balance has changed whenever it is returned, so the
	// operation can be retried.
	ErrTransferFailed = errors.New("escrow: custody transfer failed")
)

func wrapTransfer(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}

// errAlreadyDone marks a retry of an operation whose target state has already
// been reached.
func errAlreadyDone(status Status) error {
	return fmt.Errorf("%w: order already %s", ErrInvalidState, status)
}

func errBadStatus(op string, status Status) error {
	return fmt.Errorf("%w: cannot %s in status %s", ErrInvalidState, op, status)
}
