package registry

import (
	"errors"
	"time"

	"proofcart/core/events"
	"proofcart/core/types"
)

var errNilState = errors.New("registry engine: state not configured")

// The registry reports failures through sentinels mirroring the escrow
// taxonomy.
var (
	ErrNotFound     = errors.New("registry: token not found")
	ErrSerialExists = errors.New("registry: serial number already registered")
	ErrUnauthorized = errors.New("registry: caller is not the owner")
)

type engineState interface {
	RegistryPut(*NFT) error
	RegistryGet(id uint64) (*NFT, bool)
	RegistryGetBySerial(serial string) (*NFT, bool)
	RegistryNextID() (uint64, error)
	RegistryTokensOf(owner [20]byte) ([]uint64, error)
	RegistryTotal() (uint64, error)
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the product token records: minting against unique serial
// numbers, ownership transfer with an append-only history, and the
// verification lookups the storefront uses.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
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
	e.emitter.Emit(registryEvent{evt: event})
}

// Mint registers a new token owned by the caller. The serial number must not
// already be registered.
func (e *Engine) Mint(caller [20]byte, req MintRequest) (*NFT, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := SanitizeMintRequest(req)
	if err != nil {
		return nil, err
	}
	if _, ok := e.state.RegistryGetBySerial(sanitized.SerialNumber); ok {
		return nil, ErrSerialExists
	}
	id, err := e.state.RegistryNextID()
	if err != nil {
		return nil, err
	}
	nft := &NFT{
		ID:           id,
		SerialNumber: sanitized.SerialNumber,
		ProductName:  sanitized.ProductName,
		Manufacturer: sanitized.Manufacturer,
		MetadataURI:  sanitized.MetadataURI,
		Owner:        caller,
		MintedAt:     e.nowFn(),
	}
	if err := e.state.RegistryPut(nft); err != nil {
		return nil, err
	}
	e.emit(NewMintedEvent(nft))
	return nft.Clone(), nil
}

// Get returns a snapshot of the token with the given id.
func (e *Engine) Get(id uint64) (*NFT, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	nft, ok := e.state.RegistryGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return nft, nil
}

// Verify resolves a serial number to its token, the storefront's authenticity
// check.
func (e *Engine) Verify(serial string) (*NFT, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSerial(serial)
	if err != nil {
		return nil, err
	}
	nft, ok := e.state.RegistryGetBySerial(normalized)
	if !ok {
		return nil, ErrNotFound
	}
	return nft, nil
}

// Exists reports whether a serial number is already registered.
func (e *Engine) Exists(serial string) bool {
	if e == nil || e.state == nil {
		return false
	}
	normalized, err := NormalizeSerial(serial)
	if err != nil {
		return false
	}
	_, ok := e.state.RegistryGetBySerial(normalized)
	return ok
}

// Transfer hands the token to a new owner and appends a history entry. Only
// the current owner may transfer.
func (e *Engine) Transfer(id uint64, caller, newOwner [20]byte) (*NFT, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if newOwner == ([20]byte{}) {
		return nil, errors.New("registry: new owner required")
	}
	nft, ok := e.state.RegistryGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	if nft.Owner != caller {
		return nil, ErrUnauthorized
	}
	nft.History = append(nft.History, TransferRecord{
		From:      caller,
		To:        newOwner,
		Timestamp: e.nowFn(),
	})
	nft.Owner = newOwner
	if err := e.state.RegistryPut(nft); err != nil {
		return nil, err
	}
	e.emit(NewTransferredEvent(nft))
	return nft.Clone(), nil
}

// TokensOf returns every token currently owned by the address.
func (e *Engine) TokensOf(owner [20]byte) ([]*NFT, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.RegistryTokensOf(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*NFT, 0, len(ids))
	for _, id := range ids {
		if nft, ok := e.state.RegistryGet(id); ok {
			out = append(out, nft)
		}
	}
	return out, nil
}

// History returns the token's ownership log.
func (e *Engine) History(id uint64) ([]TransferRecord, error) {
	nft, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	return nft.History, nil
}

// Total returns the number of tokens minted so far.
func (e *Engine) Total() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RegistryTotal()
}

// VerifyResult pairs a queried serial with its token, if any.
type VerifyResult struct {
	SerialNumber string
	Token        *NFT
}

// BatchVerify resolves several serial numbers in one call. Unknown or
// malformed serials yield a nil token rather than an error.
func (e *Engine) BatchVerify(serials []string) []VerifyResult {
	out := make([]VerifyResult, 0, len(serials))
	for _, serial := range serials {
		nft, err := e.Verify(serial)
		if err != nil {
			nft = nil
		}
		out = append(out, VerifyResult{SerialNumber: serial, Token: nft})
	}
	return out
}
