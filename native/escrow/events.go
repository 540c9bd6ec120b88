package escrow

import (
	"encoding/hex"
	"strconv"

	"proofcart/core/types"
)

const (
	EventTypeEscrowCreated  = "escrow.created"
	EventTypeEscrowLocked   = "escrow.locked"
	EventTypeEscrowReleased = "escrow.released"
	EventTypeEscrowDisputed = "escrow.disputed"
	EventTypeEscrowResolved = "escrow.resolved"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e, "") }

// NewLockedEvent returns the canonical event payload emitted when an order's
// funds are locked in custody.
func NewLockedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowLocked, e, "") }

// NewReleasedEvent returns the canonical event payload for a buyer-confirmed
// release of custody to the seller.
func NewReleasedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReleased, e, "") }

// NewDisputedEvent returns the canonical event payload emitted when an order
// is flagged for arbitration.
func NewDisputedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDisputed, e, "") }

// NewResolvedEvent returns the canonical event payload emitted when a locked
// or disputed order is settled; outcome is "release" or "refund".
func NewResolvedEvent(e *Escrow, outcome string) *types.Event {
	return newEscrowEvent(EventTypeEscrowResolved, e, outcome)
}

func newEscrowEvent(eventType string, e *Escrow, outcome string) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["orderId"] = sanitized.OrderID
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if sanitized.LockedAt != 0 {
		attrs["lockedAt"] = strconv.FormatInt(sanitized.LockedAt, 10)
	}
	if sanitized.ReleasedAt != 0 {
		attrs["releasedAt"] = strconv.FormatInt(sanitized.ReleasedAt, 10)
	}
	if sanitized.ResolvedAt != 0 {
		attrs["resolvedAt"] = strconv.FormatInt(sanitized.ResolvedAt, 10)
	}
	if outcome != "" {
		attrs["outcome"] = outcome
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
