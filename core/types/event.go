package types

// Event is the canonical structured payload emitted by the native modules
// whenever a record transitions. Attributes are flat string pairs so events
// can be serialised and filtered without knowledge of the emitting module.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Clone returns a copy with its own attribute map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}
