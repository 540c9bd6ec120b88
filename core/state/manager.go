package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"proofcart/core/types"
	"proofcart/native/escrow"
	"proofcart/native/registry"
	"proofcart/storage"
)

const (
	escrowPrefix    = "escrow/"
	accountPrefix   = "account/"
	nftPrefix       = "registry/nft/"
	serialPrefix    = "registry/serial/"
	ownerPrefix     = "registry/owner/"
	nextTokenIDKey  = "registry/next"
	firstTokenID    = uint64(1)
	tokenKeyPadding = "%020d"
)

// Manager is the node's repository over the key-value store. It persists the
// escrow records, the registry tokens with their serial and owner indexes, and
// the ledger accounts. Decoding returns a fresh value on every read, so
// callers always hold their own copy of a record.
type Manager struct {
	db storage.Database

	// mu serialises the registry's read-modify-write paths: id allocation
	// and owner-index maintenance.
	mu sync.Mutex
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// --- escrow records ---

func escrowKey(orderID string) []byte {
	return []byte(escrowPrefix + orderID)
}

// EscrowPut sanitizes and persists the record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("encode escrow %s: %w", sanitized.OrderID, err)
	}
	return m.db.Put(escrowKey(sanitized.OrderID), raw)
}

// EscrowGet loads the record for the order, reporting presence explicitly.
func (m *Manager) EscrowGet(orderID string) (*escrow.Escrow, bool) {
	raw, err := m.db.Get(escrowKey(orderID))
	if err != nil {
		return nil, false
	}
	var esc escrow.Escrow
	if err := json.Unmarshal(raw, &esc); err != nil {
		return nil, false
	}
	return &esc, true
}

// EscrowList walks a point-in-time snapshot of every escrow record. Returning
// false from fn stops the walk.
func (m *Manager) EscrowList(fn func(*escrow.Escrow) bool) error {
	return m.db.IteratePrefix([]byte(escrowPrefix), func(_, value []byte) bool {
		var esc escrow.Escrow
		if err := json.Unmarshal(value, &esc); err != nil {
			return true
		}
		return fn(&esc)
	})
}

// CommitSettlement persists an escrow record and the accounts its settlement
// touched in a single batch, so the custody movement and the status change
// land together or not at all.
func (m *Manager) CommitSettlement(e *escrow.Escrow, accounts map[[20]byte]*types.Account) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("encode escrow %s: %w", sanitized.OrderID, err)
	}
	batch := m.db.NewBatch()
	batch.Put(escrowKey(sanitized.OrderID), raw)
	if err := stageAccounts(batch, accounts); err != nil {
		return err
	}
	return batch.Write()
}

// --- ledger accounts ---

func accountKey(addr [20]byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr[:]))
}

// GetAccount returns the stored account or a fresh zero-balance one.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	if acc.Balance == nil {
		return types.NewAccount(), nil
	}
	return &acc, nil
}

// PutAccount persists the account.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		acc = types.NewAccount()
	}
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), raw)
}

// PutAccounts persists every account in one batch. Either all of the updates
// become visible or none do, which keeps a multi-account balance movement
// from committing half-way.
func (m *Manager) PutAccounts(accounts map[[20]byte]*types.Account) error {
	batch := m.db.NewBatch()
	if err := stageAccounts(batch, accounts); err != nil {
		return err
	}
	return batch.Write()
}

func stageAccounts(batch storage.Batch, accounts map[[20]byte]*types.Account) error {
	for addr, acc := range accounts {
		if acc == nil {
			acc = types.NewAccount()
		}
		raw, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("encode account: %w", err)
		}
		batch.Put(accountKey(addr), raw)
	}
	return nil
}

// --- registry tokens ---

func tokenKey(id uint64) []byte {
	return []byte(nftPrefix + fmt.Sprintf(tokenKeyPadding, id))
}

func serialKey(serial string) []byte {
	return []byte(serialPrefix + serial)
}

func ownerKey(owner [20]byte) []byte {
	return []byte(ownerPrefix + hex.EncodeToString(owner[:]))
}

// RegistryPut persists the token and keeps the serial and owner indexes
// consistent with it.
func (m *Manager) RegistryPut(nft *registry.NFT) error {
	if nft == nil {
		return fmt.Errorf("nil token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var previousOwner *[20]byte
	if existing, ok := m.registryGetLocked(nft.ID); ok && existing.Owner != nft.Owner {
		owner := existing.Owner
		previousOwner = &owner
	}

	raw, err := json.Marshal(nft)
	if err != nil {
		return fmt.Errorf("encode token %d: %w", nft.ID, err)
	}
	if err := m.db.Put(tokenKey(nft.ID), raw); err != nil {
		return err
	}
	if err := m.db.Put(serialKey(nft.SerialNumber), []byte(strconv.FormatUint(nft.ID, 10))); err != nil {
		return err
	}
	if previousOwner != nil {
		if err := m.ownerIndexRemove(*previousOwner, nft.ID); err != nil {
			return err
		}
	}
	return m.ownerIndexAdd(nft.Owner, nft.ID)
}

// RegistryGet loads the token with the given id.
func (m *Manager) RegistryGet(id uint64) (*registry.NFT, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registryGetLocked(id)
}

func (m *Manager) registryGetLocked(id uint64) (*registry.NFT, bool) {
	raw, err := m.db.Get(tokenKey(id))
	if err != nil {
		return nil, false
	}
	var nft registry.NFT
	if err := json.Unmarshal(raw, &nft); err != nil {
		return nil, false
	}
	return &nft, true
}

// RegistryGetBySerial resolves a serial number through the index.
func (m *Manager) RegistryGetBySerial(serial string) (*registry.NFT, bool) {
	raw, err := m.db.Get(serialKey(serial))
	if err != nil {
		return nil, false
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, false
	}
	return m.RegistryGet(id)
}

// RegistryNextID allocates the next sequential token id.
func (m *Manager) RegistryNextID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := firstTokenID
	raw, err := m.db.Get([]byte(nextTokenIDKey))
	if err == nil {
		parsed, parseErr := strconv.ParseUint(string(raw), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("decode token counter: %w", parseErr)
		}
		next = parsed
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}
	if err := m.db.Put([]byte(nextTokenIDKey), []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// RegistryTotal returns how many tokens have been minted.
func (m *Manager) RegistryTotal() (uint64, error) {
	raw, err := m.db.Get([]byte(nextTokenIDKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode token counter: %w", err)
	}
	return next - firstTokenID, nil
}

// RegistryTokensOf returns the ids owned by the address.
func (m *Manager) RegistryTokensOf(owner [20]byte) ([]uint64, error) {
	raw, err := m.db.Get(ownerKey(owner))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode owner index: %w", err)
	}
	return ids, nil
}

func (m *Manager) ownerIndexAdd(owner [20]byte, id uint64) error {
	ids, err := m.ownerIndexLoad(owner)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return m.ownerIndexStore(owner, ids)
}

func (m *Manager) ownerIndexRemove(owner [20]byte, id uint64) error {
	ids, err := m.ownerIndexLoad(owner)
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	return m.ownerIndexStore(owner, filtered)
}

func (m *Manager) ownerIndexLoad(owner [20]byte) ([]uint64, error) {
	raw, err := m.db.Get(ownerKey(owner))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode owner index: %w", err)
	}
	return ids, nil
}

func (m *Manager) ownerIndexStore(owner [20]byte, ids []uint64) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return m.db.Put(ownerKey(owner), raw)
}
