package ledger

import (
	"errors"
	"math/big"
	"testing"

	"proofcart/core/state"
	"proofcart/core/types"
	"proofcart/native/escrow"
	"proofcart/storage"
)

func newTestLedger() *Ledger {
	return New(state.NewManager(storage.NewMemDB()))
}

// stubAccountState fails every write on demand so tests can check that a
// refused persistence step leaves balances exactly as they were.
type stubAccountState struct {
	accounts map[[20]byte]*types.Account
	putErr   error
}

func newStubAccountState() *stubAccountState {
	return &stubAccountState{accounts: make(map[[20]byte]*types.Account)}
}

func (s *stubAccountState) GetAccount(addr [20]byte) (*types.Account, error) {
	if acc, ok := s.accounts[addr]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (s *stubAccountState) PutAccount(addr [20]byte, acc *types.Account) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.accounts[addr] = acc.Clone()
	return nil
}

func (s *stubAccountState) PutAccounts(accounts map[[20]byte]*types.Account) error {
	if s.putErr != nil {
		return s.putErr
	}
	for addr, acc := range accounts {
		s.accounts[addr] = acc.Clone()
	}
	return nil
}

func (s *stubAccountState) CommitSettlement(e *escrow.Escrow, accounts map[[20]byte]*types.Account) error {
	return s.PutAccounts(accounts)
}

// flakyBatchDB hands out batches whose commit fails while batchErr is set.
// Plain puts keep working so fixtures can be seeded.
type flakyBatchDB struct {
	*storage.MemDB
	batchErr error
}

func (db *flakyBatchDB) NewBatch() storage.Batch {
	if db.batchErr != nil {
		return failBatch{err: db.batchErr}
	}
	return db.MemDB.NewBatch()
}

type failBatch struct {
	err error
}

func (failBatch) Put(key, value []byte) {}

func (b failBatch) Write() error { return b.err }

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestCustodyAccountDeterministic(t *testing.T) {
	l := newTestLedger()
	first, err := l.CustodyAccount("order-1")
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	again, err := l.CustodyAccount("order-1")
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if first != again {
		t.Fatalf("derivation not deterministic")
	}
	other, err := l.CustodyAccount("order-2")
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if first == other {
		t.Fatalf("distinct orders collide on custody account")
	}
	if first == ([20]byte{}) {
		t.Fatalf("custody account must be non-zero")
	}
	if _, err := l.CustodyAccount(""); err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestTransfer(t *testing.T) {
	l := newTestLedger()
	a := testAddr(0x01)
	b := testAddr(0x02)
	if err := l.Credit(a, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := l.Transfer(a, b, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balA, _ := l.BalanceOf(a)
	balB, _ := l.BalanceOf(b)
	if balA.Cmp(big.NewInt(300)) != 0 || balB.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("balances = %s, %s", balA, balB)
	}

	if err := l.Transfer(a, b, big.NewInt(301)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	balA, _ = l.BalanceOf(a)
	balB, _ = l.BalanceOf(b)
	if balA.Cmp(big.NewInt(300)) != 0 || balB.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("failed transfer touched balances: %s, %s", balA, balB)
	}
}

func TestTransferWriteFailureConservesValue(t *testing.T) {
	state := newStubAccountState()
	l := New(state)
	from := testAddr(0x01)
	to := testAddr(0x02)
	state.accounts[from] = &types.Account{Balance: big.NewInt(100)}

	state.putErr = errors.New("disk full")
	if err := l.Transfer(from, to, big.NewInt(40)); err == nil {
		t.Fatalf("expected write failure to surface")
	}

	balFrom, _ := l.BalanceOf(from)
	balTo, _ := l.BalanceOf(to)
	if balFrom.Cmp(big.NewInt(100)) != 0 || balTo.Sign() != 0 {
		t.Fatalf("failed write moved value: from=%s to=%s", balFrom, balTo)
	}
	total := new(big.Int).Add(balFrom, balTo)
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total = %s, want 100", total)
	}

	state.putErr = nil
	if err := l.Transfer(from, to, big.NewInt(40)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	balFrom, _ = l.BalanceOf(from)
	balTo, _ = l.BalanceOf(to)
	if balFrom.Cmp(big.NewInt(60)) != 0 || balTo.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("retry balances: from=%s to=%s", balFrom, balTo)
	}
}

func lockedOrder(orderID string, buyer, seller [20]byte, amount int64) *escrow.Escrow {
	return &escrow.Escrow{
		OrderID:   orderID,
		Buyer:     buyer,
		Seller:    seller,
		Amount:    big.NewInt(amount),
		Status:    escrow.StatusLocked,
		CreatedAt: 1,
		LockedAt:  1,
	}
}

func TestSettleCommitsRecordAndBalancesTogether(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	l := New(manager)
	buyer := testAddr(0x01)
	seller := testAddr(0x02)

	rec := lockedOrder("order-settle", buyer, seller, 300)
	if err := manager.EscrowPut(rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	custody, err := l.CustodyAccount(rec.OrderID)
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if err := l.Credit(custody, big.NewInt(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	released := rec.Clone()
	released.Status = escrow.StatusReleased
	released.ReleasedAt = 2
	if err := l.Settle(custody, seller, rec.Amount, released); err != nil {
		t.Fatalf("settle: %v", err)
	}

	stored, ok := manager.EscrowGet(rec.OrderID)
	if !ok || stored.Status != escrow.StatusReleased {
		t.Fatalf("stored record = %+v", stored)
	}
	balSeller, _ := l.BalanceOf(seller)
	balCustody, _ := l.BalanceOf(custody)
	if balSeller.Cmp(big.NewInt(300)) != 0 || balCustody.Sign() != 0 {
		t.Fatalf("balances: seller=%s custody=%s", balSeller, balCustody)
	}
}

func TestSettleCommitFailureKeepsRecordAndBalances(t *testing.T) {
	db := &flakyBatchDB{MemDB: storage.NewMemDB()}
	manager := state.NewManager(db)
	l := New(manager)
	buyer := testAddr(0x01)
	seller := testAddr(0x02)

	rec := lockedOrder("order-flaky", buyer, seller, 300)
	if err := manager.EscrowPut(rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	custody, err := l.CustodyAccount(rec.OrderID)
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if err := l.Credit(custody, big.NewInt(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	released := rec.Clone()
	released.Status = escrow.StatusReleased
	released.ReleasedAt = 2

	db.batchErr = errors.New("disk full")
	if err := l.Settle(custody, seller, rec.Amount, released); err == nil {
		t.Fatalf("expected commit failure to surface")
	}
	stored, _ := manager.EscrowGet(rec.OrderID)
	if stored.Status != escrow.StatusLocked || stored.ReleasedAt != 0 {
		t.Fatalf("record advanced despite failed commit: %+v", stored)
	}
	balCustody, _ := l.BalanceOf(custody)
	balSeller, _ := l.BalanceOf(seller)
	if balCustody.Cmp(big.NewInt(300)) != 0 || balSeller.Sign() != 0 {
		t.Fatalf("failed commit moved value: custody=%s seller=%s", balCustody, balSeller)
	}

	// The order stays settleable once the store recovers.
	db.batchErr = nil
	if err := l.Settle(custody, seller, rec.Amount, released); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stored, _ = manager.EscrowGet(rec.OrderID)
	if stored.Status != escrow.StatusReleased {
		t.Fatalf("retry did not commit: %+v", stored)
	}
	balSeller, _ = l.BalanceOf(seller)
	if balSeller.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("seller balance after retry = %s", balSeller)
	}
}

func TestSettleRequiresRecord(t *testing.T) {
	l := newTestLedger()
	if err := l.Settle(testAddr(0x01), testAddr(0x02), big.NewInt(1), nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestTransferEdgeCases(t *testing.T) {
	l := newTestLedger()
	a := testAddr(0x01)
	b := testAddr(0x02)
	if err := l.Credit(a, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := l.Transfer(a, b, nil); err != nil {
		t.Fatalf("nil amount must be a no-op: %v", err)
	}
	if err := l.Transfer(a, b, big.NewInt(0)); err != nil {
		t.Fatalf("zero amount must be a no-op: %v", err)
	}
	if err := l.Transfer(a, b, big.NewInt(-5)); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	if err := l.Transfer(a, a, big.NewInt(50)); err != nil {
		t.Fatalf("self transfer must be a no-op: %v", err)
	}
	bal, _ := l.BalanceOf(a)
	if bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("no-op cases moved value: %s", bal)
	}
}

func TestCreditValidation(t *testing.T) {
	l := newTestLedger()
	a := testAddr(0x01)
	if err := l.Credit(a, nil); err == nil {
		t.Fatalf("expected error for nil credit")
	}
	if err := l.Credit(a, big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero credit")
	}
	if err := l.Credit(a, big.NewInt(-1)); err == nil {
		t.Fatalf("expected error for negative credit")
	}
}

func TestNowNeverDecreases(t *testing.T) {
	l := newTestLedger()
	times := []int64{100, 50, 120, 119}
	idx := 0
	l.SetNowFunc(func() int64 {
		v := times[idx]
		idx++
		return v
	})

	want := []int64{100, 100, 120, 120}
	for i, w := range want {
		if got := l.Now(); got != w {
			t.Fatalf("call %d: now = %d, want %d", i, got, w)
		}
	}
}

func TestBalanceOfDefaultsToZero(t *testing.T) {
	l := newTestLedger()
	bal, err := l.BalanceOf(testAddr(0x77))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("fresh account balance = %s", bal)
	}
}
