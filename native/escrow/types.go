package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states supported by the escrow engine.
type Status uint8

const (
	// StatusCreated records intent only; custody may not be funded yet.
	StatusCreated Status = iota
	// StatusLocked means the order's funds sit in the custody account.
	StatusLocked
	// StatusReleased is terminal: custody was paid out to the seller.
	StatusReleased
	// StatusRefunded is terminal: custody was returned to the buyer.
	StatusRefunded
	// StatusDisputed flags the order for arbitrated resolution.
	StatusDisputed
)

// MaxOrderIDLength bounds the opaque order identifier.
const MaxOrderIDLength = 50

// Escrow captures the custody record tracked per order. Buyer, seller and
// amount are fixed at creation; only the status and its companion timestamps
// change afterwards, each timestamp exactly once.
type Escrow struct {
	OrderID    string
	Buyer      [20]byte
	Seller     [20]byte
	Amount     *big.Int
	Status     Status
	CreatedAt  int64
	LockedAt   int64
	ReleasedAt int64
	ResolvedAt int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Terminal reports whether no further transition is defined from the status.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusLocked, StatusReleased, StatusRefunded, StatusDisputed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusLocked:
		return "locked"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	case StatusDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// NormalizeOrderID validates the order identifier and returns its canonical
// trimmed form.
func NormalizeOrderID(orderID string) (string, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return "", fmt.Errorf("order id required")
	}
	if len(trimmed) > MaxOrderIDLength {
		return "", fmt.Errorf("order id exceeds %d bytes", MaxOrderIDLength)
	}
	return trimmed, nil
}

// SanitizeEscrow validates and normalises the supplied record, returning a
// cloned instance with a canonical order id and a non-nil amount. The function
// does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	orderID, err := NormalizeOrderID(clone.OrderID)
	if err != nil {
		return nil, err
	}
	clone.OrderID = orderID
	if clone.Amount == nil {
		clone.Amount = big.NewInt(0)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}
