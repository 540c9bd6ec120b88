package registry

import (
	"encoding/hex"
	"strconv"

	"proofcart/core/types"
)

const (
	EventTypeTokenMinted      = "registry.minted"
	EventTypeTokenTransferred = "registry.transferred"
)

// NewMintedEvent returns the canonical payload for a newly minted token.
func NewMintedEvent(n *NFT) *types.Event { return newTokenEvent(EventTypeTokenMinted, n) }

// NewTransferredEvent returns the canonical payload for an ownership change.
func NewTransferredEvent(n *NFT) *types.Event { return newTokenEvent(EventTypeTokenTransferred, n) }

func newTokenEvent(eventType string, n *NFT) *types.Event {
	attrs := make(map[string]string)
	if n == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(n.ID, 10)
	attrs["serial"] = n.SerialNumber
	attrs["owner"] = hex.EncodeToString(n.Owner[:])
	attrs["product"] = n.ProductName
	if n.Manufacturer != "" {
		attrs["manufacturer"] = n.Manufacturer
	}
	attrs["mintedAt"] = strconv.FormatInt(n.MintedAt, 10)
	if len(n.History) > 0 {
		last := n.History[len(n.History)-1]
		attrs["from"] = hex.EncodeToString(last.From[:])
		attrs["to"] = hex.EncodeToString(last.To[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
