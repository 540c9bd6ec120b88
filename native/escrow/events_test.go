package escrow

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestResolvedEventAttributes(t *testing.T) {
	esc := &Escrow{
		OrderID:    "order-evt",
		Buyer:      newTestAddress(0x01),
		Seller:     newTestAddress(0x02),
		Amount:     big.NewInt(750),
		Status:     StatusRefunded,
		CreatedAt:  100,
		LockedAt:   110,
		ResolvedAt: 120,
	}
	evt := NewResolvedEvent(esc, "refund")
	if evt.Type != EventTypeEscrowResolved {
		t.Fatalf("type = %s", evt.Type)
	}
	want := map[string]string{
		"orderId":    "order-evt",
		"buyer":      hex.EncodeToString(esc.Buyer[:]),
		"seller":     hex.EncodeToString(esc.Seller[:]),
		"amount":     "750",
		"status":     "refunded",
		"createdAt":  "100",
		"lockedAt":   "110",
		"resolvedAt": "120",
		"outcome":    "refund",
	}
	for key, value := range want {
		if got := evt.Attributes[key]; got != value {
			t.Fatalf("attribute %s = %q, want %q", key, got, value)
		}
	}
	if _, ok := evt.Attributes["releasedAt"]; ok {
		t.Fatalf("unset timestamp must be omitted")
	}
}

func TestCreatedEventOmitsUnsetTimestamps(t *testing.T) {
	esc := &Escrow{
		OrderID:   "order-evt2",
		Buyer:     newTestAddress(0x01),
		Seller:    newTestAddress(0x02),
		Amount:    big.NewInt(10),
		Status:    StatusCreated,
		CreatedAt: 55,
	}
	evt := NewCreatedEvent(esc)
	for _, key := range []string{"lockedAt", "releasedAt", "resolvedAt", "outcome"} {
		if _, ok := evt.Attributes[key]; ok {
			t.Fatalf("unexpected attribute %s", key)
		}
	}
	if evt.Attributes["status"] != "created" {
		t.Fatalf("status attribute = %q", evt.Attributes["status"])
	}
}

func TestEventWithNilEscrow(t *testing.T) {
	evt := NewCreatedEvent(nil)
	if evt.Type != EventTypeEscrowCreated || len(evt.Attributes) != 0 {
		t.Fatalf("unexpected payload: %+v", evt)
	}
}
