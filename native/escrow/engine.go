package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"proofcart/core/events"
	"proofcart/core/types"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilLedger = errors.New("escrow engine: ledger not configured")
)

// Ledger is the external collaborator that custodies value for the engine. It
// derives the per-order holding account, moves value all-or-nothing between
// accounts and supplies a non-decreasing clock. Settle commits a balance
// movement and the escrow record as one atomic unit; when it errors, neither
// the balances nor the record have changed.
type Ledger interface {
	CustodyAccount(orderID string) ([20]byte, error)
	Transfer(from, to [20]byte, amount *big.Int) error
	Settle(from, to [20]byte, amount *big.Int, record *Escrow) error
	Now() int64
}

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(orderID string) (*Escrow, bool)
	EscrowList(fn func(*Escrow) bool) error
}

// ResolutionPolicy selects who may settle an order out of Locked or Disputed.
type ResolutionPolicy uint8

const (
	// ResolveAdminOnly restricts both resolution outcomes to the arbiter.
	ResolveAdminOnly ResolutionPolicy = iota
	// ResolveParticipantArbitrated additionally lets a participant concede in
	// the counterparty's favour, and widens authority to the beneficiary once
	// the order is disputed.
	ResolveParticipantArbitrated
)

// Valid reports whether the policy value is within the supported range.
func (p ResolutionPolicy) Valid() bool {
	return p == ResolveAdminOnly || p == ResolveParticipantArbitrated
}

func (p ResolutionPolicy) String() string {
	switch p {
	case ResolveAdminOnly:
		return "admin"
	case ResolveParticipantArbitrated:
		return "participants"
	default:
		return "unknown"
	}
}

// Config carries the behavioural knobs that union the two supported protocol
// shapes: whether creation pulls the buyer's funds immediately, and how
// dispute resolution is authorized.
type Config struct {
	FundOnCreate bool
	Resolution   ResolutionPolicy
	Arbiter      [20]byte
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the per-order custody records. Every transition validates the
// current status against the operation's allowed set, then the caller against
// the required role, before any ledger movement is attempted; a failed
// transfer leaves the stored record byte-for-byte unchanged.
type Engine struct {
	state   engineState
	ledger  Ledger
	emitter events.Emitter
	cfg     Config

	mu    sync.Mutex
	locks map[string]*orderLock
}

// orderLock is a per-order mutex with a waiter count so the engine can evict
// the map entry once nobody holds or wants it.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates an escrow engine with a no-op emitter. Callers wire the
// state backend and ledger via SetState and SetLedger before use.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		cfg:     cfg,
		locks:   make(map[string]*orderLock),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the ledger collaborator used for custody movement.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// lockOrder acquires the per-order mutual-exclusion scope. The returned
// function must run on every exit path so two callers can never both observe
// the same status and race the commit. The map entry is evicted when the
// last holder releases it, keeping lock storage bounded under order-id churn.
func (e *Engine) lockOrder(orderID string) func() {
	e.mu.Lock()
	l, ok := e.locks[orderID]
	if !ok {
		l = new(orderLock)
		e.locks[orderID] = l
	}
	l.refs++
	e.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, orderID)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) loadEscrow(orderID string) (*Escrow, error) {
	esc, ok := e.state.EscrowGet(orderID)
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Create allocates the custody record for an order. The caller becomes the
// buyer. With FundOnCreate the buyer's funds move into custody atomically with
// creation and the record enters Locked; otherwise it enters Created and the
// custody account is funded out-of-band by the payment flow.
func (e *Engine) Create(caller [20]byte, orderID string, seller [20]byte, amount *big.Int) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeOrderID(orderID)
	if err != nil {
		return nil, err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: amount must be positive")
	}
	if seller == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: seller required")
	}
	if seller == caller {
		return nil, fmt.Errorf("escrow: buyer and seller must differ")
	}
	unlock := e.lockOrder(normalized)
	defer unlock()
	if _, ok := e.state.EscrowGet(normalized); ok {
		return nil, ErrAlreadyExists
	}
	now := e.ledger.Now()
	esc := &Escrow{
		OrderID:   normalized,
		Buyer:     caller,
		Seller:    seller,
		Amount:    amt,
		Status:    StatusCreated,
		CreatedAt: now,
	}
	if e.cfg.FundOnCreate {
		custody, err := e.ledger.CustodyAccount(normalized)
		if err != nil {
			return nil, err
		}
		esc.Status = StatusLocked
		esc.LockedAt = now
		if err := e.ledger.Settle(caller, custody, amt, esc); err != nil {
			return nil, wrapTransfer(err)
		}
	} else if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	if esc.Status == StatusLocked {
		e.emit(NewLockedEvent(esc))
	}
	return esc.Clone(), nil
}

// ConfirmRelease settles the order in the seller's favour on the buyer's
// say-so. Allowed from Created and Locked only.
func (e *Engine) ConfirmRelease(orderID string, caller [20]byte) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lockOrder(orderID)
	defer unlock()
	esc, err := e.loadEscrow(orderID)
	if err != nil {
		return nil, err
	}
	switch esc.Status {
	case StatusReleased:
		return nil, errAlreadyDone(esc.Status)
	case StatusCreated, StatusLocked:
	default:
		return nil, errBadStatus("release", esc.Status)
	}
	if caller != esc.Buyer {
		return nil, ErrUnauthorized
	}
	custody, err := e.ledger.CustodyAccount(esc.OrderID)
	if err != nil {
		return nil, err
	}
	esc.Status = StatusReleased
	esc.ReleasedAt = e.ledger.Now()
	if err := e.ledger.Settle(custody, esc.Seller, esc.Amount, esc); err != nil {
		return nil, wrapTransfer(err)
	}
	e.emit(NewReleasedEvent(esc))
	return esc.Clone(), nil
}

// LockForDispute moves a Created order into Locked without touching custody.
// The buyer may always lock; under participant arbitration the seller may too.
func (e *Engine) LockForDispute(orderID string, caller [20]byte) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lockOrder(orderID)
	defer unlock()
	esc, err := e.loadEscrow(orderID)
	if err != nil {
		return nil, err
	}
	switch esc.Status {
	case StatusLocked:
		return nil, errAlreadyDone(esc.Status)
	case StatusCreated:
	default:
		return nil, errBadStatus("lock", esc.Status)
	}
	if caller != esc.Buyer {
		if e.cfg.Resolution != ResolveParticipantArbitrated || caller != esc.Seller {
			return nil, ErrUnauthorized
		}
	}
	esc.Status = StatusLocked
	esc.LockedAt = e.ledger.Now()
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewLockedEvent(esc))
	return esc.Clone(), nil
}

// FlagDispute marks a Locked order as Disputed. Either participant may flag.
func (e *Engine) FlagDispute(orderID string, caller [20]byte) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lockOrder(orderID)
	defer unlock()
	esc, err := e.loadEscrow(orderID)
	if err != nil {
		return nil, err
	}
	switch esc.Status {
	case StatusDisputed:
		return nil, errAlreadyDone(esc.Status)
	case StatusLocked:
	default:
		return nil, errBadStatus("dispute", esc.Status)
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return nil, ErrUnauthorized
	}
	esc.Status = StatusDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(esc))
	return esc.Clone(), nil
}

// ResolveRefund settles the order in the buyer's favour.
func (e *Engine) ResolveRefund(orderID string, caller [20]byte) (*Escrow, error) {
	return e.resolve(orderID, caller, false)
}

// ResolveRelease settles the order in the seller's favour.
func (e *Engine) ResolveRelease(orderID string, caller [20]byte) (*Escrow, error) {
	return e.resolve(orderID, caller, true)
}

func (e *Engine) resolve(orderID string, caller [20]byte, favourSeller bool) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	unlock := e.lockOrder(orderID)
	defer unlock()
	esc, err := e.loadEscrow(orderID)
	if err != nil {
		return nil, err
	}
	op := "refund"
	target := StatusRefunded
	if favourSeller {
		op = "release"
		target = StatusReleased
	}
	switch esc.Status {
	case target:
		return nil, errAlreadyDone(esc.Status)
	case StatusLocked, StatusDisputed:
	default:
		return nil, errBadStatus(op, esc.Status)
	}
	if !e.mayResolve(esc, caller, favourSeller) {
		return nil, ErrUnauthorized
	}
	recipient := esc.Buyer
	if favourSeller {
		recipient = esc.Seller
	}
	custody, err := e.ledger.CustodyAccount(esc.OrderID)
	if err != nil {
		return nil, err
	}
	esc.Status = target
	esc.ResolvedAt = e.ledger.Now()
	if err := e.ledger.Settle(custody, recipient, esc.Amount, esc); err != nil {
		return nil, wrapTransfer(err)
	}
	e.emit(NewResolvedEvent(esc, op))
	return esc.Clone(), nil
}

// mayResolve encodes the resolution authority table. The arbiter may always
// resolve. Under participant arbitration a party may concede in the
// counterparty's favour from Locked; once Disputed the beneficiary gains the
// same authority, which is the asymmetry that makes flagging worthwhile.
func (e *Engine) mayResolve(esc *Escrow, caller [20]byte, favourSeller bool) bool {
	if e.cfg.Arbiter != ([20]byte{}) && caller == e.cfg.Arbiter {
		return true
	}
	if e.cfg.Resolution != ResolveParticipantArbitrated {
		return false
	}
	if favourSeller {
		if caller == esc.Buyer {
			return true
		}
		return esc.Status == StatusDisputed && caller == esc.Seller
	}
	if caller == esc.Seller {
		return true
	}
	return esc.Status == StatusDisputed && caller == esc.Buyer
}

// Get returns a snapshot of the custody record for the order.
func (e *Engine) Get(orderID string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	unlock := e.lockOrder(orderID)
	defer unlock()
	return e.loadEscrow(orderID)
}

// ListByParticipant returns a point-in-time snapshot of every record in which
// the address is buyer or seller. Records mutated concurrently may appear in
// either their old or new state, but never half-written.
func (e *Engine) ListByParticipant(addr [20]byte) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*Escrow
	err := e.state.EscrowList(func(esc *Escrow) bool {
		if esc.Buyer == addr || esc.Seller == addr {
			out = append(out, esc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
