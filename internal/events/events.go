// Package events provides the two event source shapes a fiber can wait on:
// objects implementing EventTarget (add/remove listener by type), and a
// pub/sub Bus keyed by an arbitrary comparable source value.
//
// Dispatch is synchronous and happens on the caller's goroutine. Listeners
// may unsubscribe themselves (or others) while being dispatched to.
package events

// Event is a notification delivered to listeners.
type Event struct {
	Source  any
	Type    string
	Payload any
}

// Listener receives events. Listeners are compared by identity when removed,
// so implementations should be pointer types.
type Listener interface {
	HandleEvent(ev Event)
}

// ListenerFunc adapts a function to a Listener. Function values are not
// comparable; wrap them with NewListener to get a removable pointer.
type ListenerFunc func(ev Event)

type funcListener struct {
	f ListenerFunc
}

func (l *funcListener) HandleEvent(ev Event) {
	l.f(ev)
}

// NewListener wraps f in a Listener that can later be removed.
func NewListener(f ListenerFunc) Listener {
	return &funcListener{f: f}
}

// EventTarget is implemented by objects that manage their own listeners.
type EventTarget interface {
	AddEventListener(typ string, l Listener)
	RemoveEventListener(typ string, l Listener)
}

// Target is an embeddable EventTarget implementation.
//
// The zero value is ready to use. Listener order is registration order.
type Target struct {
	listeners map[string][]Listener
}

// AddEventListener registers l for events of the given type. Adding the
// same listener twice has no effect.
func (t *Target) AddEventListener(typ string, l Listener) {
	if t.listeners == nil {
		t.listeners = make(map[string][]Listener)
	}
	for _, existing := range t.listeners[typ] {
		if existing == l {
			return
		}
	}
	t.listeners[typ] = append(t.listeners[typ], l)
}

// RemoveEventListener unregisters l for events of the given type.
func (t *Target) RemoveEventListener(typ string, l Listener) {
	t.listeners[typ] = removeListener(t.listeners[typ], l)
	if len(t.listeners[typ]) == 0 {
		delete(t.listeners, typ)
	}
}

// ListenerCount returns the number of listeners registered for typ.
func (t *Target) ListenerCount(typ string) int {
	return len(t.listeners[typ])
}

// Dispatch delivers ev to the listeners registered for ev.Type.
// ev.Source is left as given; callers typically set it to the embedding object.
func (t *Target) Dispatch(ev Event) {
	for _, l := range snapshot(t.listeners[ev.Type]) {
		l.HandleEvent(ev)
	}
}

func removeListener(ls []Listener, l Listener) []Listener {
	for i, existing := range ls {
		if existing == l {
			return append(ls[:i:i], ls[i+1:]...)
		}
	}
	return ls
}

func snapshot(ls []Listener) []Listener {
	if len(ls) == 0 {
		return nil
	}
	return append([]Listener(nil), ls...)
}
