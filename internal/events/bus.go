package events

// Bus is a pub/sub hub for sources that do not implement EventTarget.
// Sources are map keys and must be comparable.
//
// Thread-safety: Bus is NOT safe for concurrent use. The scheduler owns one
// and only touches it from the goroutine driving its clock.
type Bus struct {
	sources map[any]map[string][]Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{sources: make(map[any]map[string][]Listener)}
}

// On registers l for events of typ from source and returns it.
func (b *Bus) On(source any, typ string, l Listener) Listener {
	byType, ok := b.sources[source]
	if !ok {
		byType = make(map[string][]Listener)
		b.sources[source] = byType
	}
	for _, existing := range byType[typ] {
		if existing == l {
			return l
		}
	}
	byType[typ] = append(byType[typ], l)
	return l
}

// Once registers a listener that is removed before it handles its first event.
func (b *Bus) Once(source any, typ string, f ListenerFunc) Listener {
	var l Listener
	l = NewListener(func(ev Event) {
		b.Off(source, typ, l)
		f(ev)
	})
	return b.On(source, typ, l)
}

// Off unregisters l for events of typ from source.
func (b *Bus) Off(source any, typ string, l Listener) {
	byType, ok := b.sources[source]
	if !ok {
		return
	}
	byType[typ] = removeListener(byType[typ], l)
	if len(byType[typ]) == 0 {
		delete(byType, typ)
	}
	if len(byType) == 0 {
		delete(b.sources, source)
	}
}

// Notify synchronously dispatches an event to the listeners of (source, typ)
// and returns the event.
func (b *Bus) Notify(source any, typ string, payload any) Event {
	ev := Event{Source: source, Type: typ, Payload: payload}
	if byType, ok := b.sources[source]; ok {
		for _, l := range snapshot(byType[typ]) {
			l.HandleEvent(ev)
		}
	}
	return ev
}

// ListenerCount returns the number of listeners for (source, typ).
func (b *Bus) ListenerCount(source any, typ string) int {
	return len(b.sources[source][typ])
}
