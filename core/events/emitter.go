package events

import (
	"sync"

	"proofcart/core/types"
)

// Event is the minimal surface an emitted payload must expose.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives events produced by the native modules.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines default to it so emission never
// needs a nil check on the hot path.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Recorder buffers emitted events in memory. The RPC event listing and the
// engine tests read them back in emission order.
type Recorder struct {
	mu     sync.RWMutex
	events []*types.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, payload.Clone())
	r.mu.Unlock()
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Event, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Clone())
	}
	return out
}
