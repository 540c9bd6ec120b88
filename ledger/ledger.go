// Package ledger provides the value-holding collaborator consumed by the
// escrow engine: balance accounts, all-or-nothing transfers, deterministic
// custody account derivation per order, and a non-decreasing clock.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"proofcart/core/types"
	"proofcart/native/escrow"
)

// custodySeed namespaces derived custody accounts away from key-derived ones.
const custodySeed = "escrow"

var (
	errNilState = errors.New("ledger: state not configured")

	// ErrInsufficientFunds is returned when the source account cannot cover
	// the transfer amount. No balance is touched when it is returned.
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
)

type accountState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
	// PutAccounts applies every update atomically or not at all.
	PutAccounts(accounts map[[20]byte]*types.Account) error
	// CommitSettlement writes the escrow record and the account updates as
	// one atomic unit.
	CommitSettlement(e *escrow.Escrow, accounts map[[20]byte]*types.Account) error
}

// Ledger moves value between 20-byte accounts persisted through the state
// manager. A transfer either applies fully or not at all.
type Ledger struct {
	state accountState
	nowFn func() int64

	mu      sync.Mutex
	lastNow int64
}

// New returns a ledger backed by the supplied account state.
func New(state accountState) *Ledger {
	return &Ledger{
		state: state,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// CustodyAccount derives the holding account for an order. The derivation is
// a keccak256 over a fixed seed and the order id, so it is deterministic and
// collision-free across order ids without any stored index.
func (l *Ledger) CustodyAccount(orderID string) ([20]byte, error) {
	var addr [20]byte
	if orderID == "" {
		return addr, fmt.Errorf("ledger: order id required for custody derivation")
	}
	hash := ethcrypto.Keccak256([]byte(custodySeed), []byte(orderID))
	copy(addr[:], hash[12:])
	return addr, nil
}

// Now returns a unix timestamp that never decreases across calls.
func (l *Ledger) Now() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if now < l.lastNow {
		now = l.lastNow
	}
	l.lastNow = now
	return now
}

// Transfer moves amount from one account to the other. A zero amount is a
// no-op; a negative amount is rejected before any state is read. The debit
// and the credit land in one batch, so a failed write cannot destroy value.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	updated, err := l.applyTransfer(from, to, amount)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return nil
	}
	return l.state.PutAccounts(updated)
}

// Settle moves amount into the recipient's account and persists the escrow
// record in the same batch as the balance writes. On any error nothing is
// committed, so a settlement can never leave the record and the balances
// disagreeing.
func (l *Ledger) Settle(from, to [20]byte, amount *big.Int, record *escrow.Escrow) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if record == nil {
		return fmt.Errorf("ledger: settlement record required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	updated, err := l.applyTransfer(from, to, amount)
	if err != nil {
		return err
	}
	return l.state.CommitSettlement(record, updated)
}

// applyTransfer checks and computes the post-transfer accounts without
// persisting anything. Callers hold l.mu. A nil map means no balance moved.
func (l *Ledger) applyTransfer(from, to [20]byte, amount *big.Int) (map[[20]byte]*types.Account, error) {
	if amount == nil || amount.Sign() == 0 {
		return nil, nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("ledger: negative transfer amount")
	}
	if from == to {
		return nil, nil
	}
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return nil, err
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return nil, err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	return map[[20]byte]*types.Account{from: fromAcc, to: toAcc}, nil
}

// Credit mints balance into an account. Used for genesis allocations.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: credit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr, acc)
}

// BalanceOf returns the current balance of the account.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}
