package fiber

import (
	"math"
)

// ScheduledFiber is one execution of a Fiber program.
//
// Local time: a fiber's local time advances at its effective rate (its own
// rate times its parent's effective rate). It is kept as an anchor pair
// (global, local) that is moved every time the fiber runs or its rate
// changes, so that local(t) = anchorLocal + effectiveRate*(t-anchorGlobal).
type ScheduledFiber struct {
	id      int
	program *Fiber
	ops     []instruction
	ip      int
	last    int // index of the last op executed
	begun   bool
	ended   bool

	anchorGlobal  float64
	anchorLocal   float64
	now           float64
	rate          float64
	effectiveRate float64

	value  any
	err    error
	errGen int
	caught []int // either blocks being handled, by error generation

	parent   *ScheduledFiber
	children []*ScheduledFiber // spawned since the last join, in spawn order
	finished []*ScheduledFiber // ended before the join began, in end order
	child    *ScheduledFiber   // single child of seq, repeat and each
	join     *Join
	async    *asyncState
	ramp     *rampState
	repeat   *repeatState
	held     bool // resumed while paused

	scope *Scope
	name  string
}

// asyncState is present while a fiber waits for a deferred or an event.
type asyncState struct {
	cancel       func()
	wasCancelled func(f *ScheduledFiber, s *Scheduler)
}

// rampState is present while a fiber is inside a ramp (or delay). begin is
// in local time.
type rampState struct {
	begin float64
	dur   float64
	fn    RampFunc
}

type repeatState struct {
	op             *repeatOp
	count          int
	iterationBegin float64
	items          []any
	values         []any
}

func newScheduledFiber(id int, program *Fiber, parent *ScheduledFiber) *ScheduledFiber {
	sf := &ScheduledFiber{
		id:            id,
		program:       program,
		ops:           program.ops,
		rate:          1,
		effectiveRate: 1,
	}
	if parent != nil {
		sf.parent = parent
		sf.scope = NewScope(parent.scope)
		sf.value = parent.value
		sf.effectiveRate = parent.effectiveRate
	} else {
		sf.scope = NewScope(nil)
	}
	return sf
}

// ID returns the fiber id, unique within its scheduler.
func (sf *ScheduledFiber) ID() int { return sf.id }

// Program returns the program this fiber runs.
func (sf *ScheduledFiber) Program() *Fiber { return sf.program }

// Value returns the current value.
func (sf *ScheduledFiber) Value() any { return sf.value }

// SetValue sets the current value.
func (sf *ScheduledFiber) SetValue(v any) { sf.value = v }

// Err returns the current error, or nil.
func (sf *ScheduledFiber) Err() error { return sf.err }

// Recover clears the current error and returns it. Call it from inside an
// Ever block to resume normal execution.
func (sf *ScheduledFiber) Recover() error {
	err := sf.err
	sf.err = nil
	return err
}

// IsCancelled reports whether the fiber carries the cancellation error.
func (sf *ScheduledFiber) IsCancelled() bool { return IsCancelled(sf.err) }

// Now returns the local time of the fiber, as of the last time it ran or
// received progress.
func (sf *ScheduledFiber) Now() float64 { return sf.now }

// Rate returns the fiber's own rate.
func (sf *ScheduledFiber) Rate() float64 { return sf.rate }

// EffectiveRate returns the product of the rates along the parent chain.
func (sf *ScheduledFiber) EffectiveRate() float64 { return sf.effectiveRate }

// Parent returns the parent fiber, or nil for a top-level fiber.
func (sf *ScheduledFiber) Parent() *ScheduledFiber { return sf.parent }

// Children returns the children spawned since the last join.
func (sf *ScheduledFiber) Children() []*ScheduledFiber {
	return append([]*ScheduledFiber(nil), sf.children...)
}

// Scope returns the fiber scope.
func (sf *ScheduledFiber) Scope() *Scope { return sf.scope }

// Name returns the registered name of the fiber, if any.
func (sf *ScheduledFiber) Name() string { return sf.name }

// IP returns the instruction pointer.
func (sf *ScheduledFiber) IP() int { return sf.ip }

// Ended reports whether the fiber ran to the end of its program.
func (sf *ScheduledFiber) Ended() bool { return sf.ended }

// handlesErrors is true when the op the fiber is at is error tolerant. A
// fiber that has not begun looks at its first op.
func (sf *ScheduledFiber) handlesErrors() bool {
	if len(sf.ops) == 0 {
		return false
	}
	return sf.ops[sf.last].ever
}

func (sf *ScheduledFiber) setErr(err error) {
	sf.err = err
	sf.errGen++
}

// localAt returns the local time at global time t.
func (sf *ScheduledFiber) localAt(t float64) float64 {
	r := sf.effectiveRate
	if t == sf.anchorGlobal || r == 0 || math.IsInf(r, 0) {
		return sf.anchorLocal
	}
	return sf.anchorLocal + r*(t-sf.anchorGlobal)
}

// reanchor moves the anchor to global time t.
func (sf *ScheduledFiber) reanchor(t float64) {
	if !sf.begun {
		return
	}
	sf.anchorLocal = sf.localAt(t)
	sf.anchorGlobal = t
	sf.now = sf.anchorLocal
}

// wakeTime returns the global time at which the current ramp ends, given
// that the fiber is anchored at global time t.
func (sf *ScheduledFiber) wakeTime(t float64) float64 {
	st := sf.ramp
	if st == nil || math.IsInf(st.dur, 1) {
		return math.Inf(1)
	}
	remaining := st.begin + st.dur - sf.localAt(t)
	r := sf.effectiveRate
	switch {
	case remaining <= 0:
		return t
	case r <= 0:
		return math.Inf(1)
	case math.IsInf(r, 1):
		return t
	}
	return t + remaining/r
}

// progressAt returns the ramp progress at local time local.
func (st *rampState) progressAt(local float64) float64 {
	if math.IsInf(st.dur, 1) {
		return 0
	}
	p := (local - st.begin) / st.dur
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}

// mulRate multiplies rates so that a paused fiber stays paused under an
// infinite parent rate.
func mulRate(a, b float64) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a * b
}
