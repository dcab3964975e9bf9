package fiber

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/roach88/tempo/internal/events"
)

// OpKind names an op variant. Observers receive it before each op runs.
type OpKind string

const (
	OpCall   OpKind = "call"
	OpEffect OpKind = "effect"
	OpAwait  OpKind = "await"
	OpEvent  OpKind = "event"
	OpRamp   OpKind = "ramp"
	OpSpawn  OpKind = "spawn"
	OpJoin   OpKind = "join"
	OpSeq    OpKind = "seq"
	OpRepeat OpKind = "repeat"
	OpEach   OpKind = "each"
	OpMap    OpKind = "map"
	OpEither OpKind = "either"
	OpElse   OpKind = "either/else"
	OpEnd    OpKind = "either/end"
	OpNamed  OpKind = "named"
	OpStore  OpKind = "store"
)

// op is the sum type of instructions. Scheduler.exec dispatches on the
// concrete type.
type op interface {
	kind() OpKind
}

type callOp struct{ fn CallFunc }

type effectOp struct{ fn EffectFunc }

type awaitOp struct {
	fn       AsyncFunc
	delegate *AsyncDelegate
}

type eventOp struct {
	target   any
	typ      any
	delegate *EventDelegate
}

type rampOp struct {
	dur   float64
	durFn DurationFunc
	fn    RampFunc
}

type spawnOp struct{ child *Fiber }

type joinOp struct{ delegate *JoinDelegate }

type seqOp struct{ child *Fiber }

type repeatOp struct {
	body     *Fiber
	delegate *RepeatDelegate
	each     bool
}

type mapOp struct{ body *Fiber }

type eitherBeginOp struct {
	hasElse bool
	elseIP  int
	endIP   int
}

type eitherElseOp struct{ endIP int }

type eitherEndOp struct{}

type namedOp struct{ name string }

type storeOp struct{ key string }

func (*callOp) kind() OpKind        { return OpCall }
func (*effectOp) kind() OpKind      { return OpEffect }
func (*awaitOp) kind() OpKind       { return OpAwait }
func (*eventOp) kind() OpKind       { return OpEvent }
func (*rampOp) kind() OpKind        { return OpRamp }
func (*spawnOp) kind() OpKind       { return OpSpawn }
func (*joinOp) kind() OpKind        { return OpJoin }
func (*seqOp) kind() OpKind         { return OpSeq }
func (*mapOp) kind() OpKind         { return OpMap }
func (*eitherBeginOp) kind() OpKind { return OpEither }
func (*eitherElseOp) kind() OpKind  { return OpElse }
func (*eitherEndOp) kind() OpKind   { return OpEnd }
func (*namedOp) kind() OpKind       { return OpNamed }
func (*storeOp) kind() OpKind       { return OpStore }

func (o *repeatOp) kind() OpKind {
	if o.each {
		return OpEach
	}
	return OpRepeat
}

// AsyncDelegate customizes the end of an Await op. Nil callbacks accept.
type AsyncDelegate struct {
	// AsyncWillEndWithValue may transform the resolved value, or turn it
	// into an error.
	AsyncWillEndWithValue func(v any, f *ScheduledFiber, s *Scheduler) (any, error)

	// AsyncWillEndWithError may replace the rejection error; returning nil
	// recovers from it.
	AsyncWillEndWithError func(err error, f *ScheduledFiber, s *Scheduler) error

	// AsyncWasCancelled is called instead of the callbacks above when the
	// fiber is cancelled while it waits.
	AsyncWasCancelled func(f *ScheduledFiber, s *Scheduler)
}

// EventDelegate customizes an Event op. Nil callbacks accept.
type EventDelegate struct {
	// EventShouldBeIgnored returns true to keep waiting.
	EventShouldBeIgnored func(ev events.Event, f *ScheduledFiber, s *Scheduler) bool

	// EventWasHandled is called with the accepted event before the fiber
	// resumes. A returned error fails the fiber.
	EventWasHandled func(ev events.Event, f *ScheduledFiber, s *Scheduler) error

	// AsyncWasCancelled is called when the fiber is cancelled while it
	// waits, after its listener is removed.
	AsyncWasCancelled func(f *ScheduledFiber, s *Scheduler)
}

// RepeatDelegate controls a Repeat op.
type RepeatDelegate struct {
	// RepeatShouldEnd is called before every iteration with the number of
	// iterations done so far (starting at 0, so the loop may not run at all).
	RepeatShouldEnd func(count int, f *ScheduledFiber, s *Scheduler) bool
}

// exec runs one op for sf. It returns true when the fiber must yield.
func (s *Scheduler) exec(sf *ScheduledFiber, o op) (bool, error) {
	switch o := o.(type) {
	case *callOp:
		v, err := o.fn(sf, s)
		if err != nil {
			return false, err
		}
		sf.value = v
		return false, nil

	case *effectOp:
		return false, o.fn(sf, s)

	case *awaitOp:
		return s.execAwait(sf, o)

	case *eventOp:
		return s.execEvent(sf, o)

	case *rampOp:
		return s.execRamp(sf, o)

	case *spawnOp:
		s.AttachFiber(sf, o.child)
		return false, nil

	case *joinOp:
		return s.execJoin(sf, o)

	case *seqOp:
		s.attachSingle(sf, o.child, sf.value)
		return true, nil

	case *repeatOp:
		return s.execRepeat(sf, o)

	case *mapOp:
		items, ok := itemsOf(sf.value)
		if !ok {
			s.attach(sf, o.body, sf.value)
			return false, nil
		}
		for _, item := range items {
			s.attach(sf, o.body, item)
		}
		return false, nil

	case *eitherBeginOp:
		if o.hasElse && sf.err != nil {
			sf.caught = append(sf.caught, sf.errGen)
			sf.ip = o.elseIP + 1
		}
		return false, nil

	case *eitherElseOp:
		if sf.err != nil {
			sf.caught = append(sf.caught, sf.errGen)
		} else {
			sf.ip = o.endIP + 1
		}
		return false, nil

	case *eitherEndOp:
		if n := len(sf.caught); n > 0 {
			gen := sf.caught[n-1]
			sf.caught = sf.caught[:n-1]
			if sf.err != nil && sf.errGen == gen {
				sf.err = nil
			}
		}
		return false, nil

	case *namedOp:
		return false, s.SetNameForFiber(sf, o.name)

	case *storeOp:
		sf.scope.Define(o.key, sf.value)
		return false, nil
	}
	panic(fmt.Sprintf("fiber: unknown op %T", o))
}

func (s *Scheduler) execAwait(sf *ScheduledFiber, o *awaitOp) (bool, error) {
	d, err := o.fn(sf, s)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, &FiberError{Code: ErrCodeNilDeferred, Message: "async function returned no deferred", FiberID: sf.id}
	}
	if d.Settled() {
		v, err := d.Result()
		return false, s.endAsync(sf, o.delegate, v, err)
	}

	st := &asyncState{}
	if o.delegate != nil {
		st.wasCancelled = o.delegate.AsyncWasCancelled
	}
	sf.async = st
	unsubscribe := d.subscribe(func(v any, err error) {
		if sf.async != st {
			return
		}
		sf.async = nil
		t := s.currentTime()
		sf.reanchor(t)
		err = s.endAsync(sf, o.delegate, v, err)
		s.resume(sf)
		if err != nil {
			s.failFiber(sf, err)
		}
	})
	st.cancel = func() {
		unsubscribe()
		d.abandon()
	}
	return true, nil
}

// endAsync applies the delegate to the outcome of an async op.
func (s *Scheduler) endAsync(sf *ScheduledFiber, d *AsyncDelegate, v any, err error) error {
	if err != nil {
		if d != nil && d.AsyncWillEndWithError != nil {
			return d.AsyncWillEndWithError(err, sf, s)
		}
		return err
	}
	if d != nil && d.AsyncWillEndWithValue != nil {
		if v, err = d.AsyncWillEndWithValue(v, sf, s); err != nil {
			return err
		}
	}
	sf.value = v
	return nil
}

func (s *Scheduler) execEvent(sf *ScheduledFiber, o *eventOp) (bool, error) {
	target := o.target
	if fn, ok := target.(func(*ScheduledFiber, *Scheduler) any); ok {
		target = fn(sf, s)
	}
	var typ string
	switch t := o.typ.(type) {
	case string:
		typ = t
	case func(*ScheduledFiber, *Scheduler) string:
		typ = t(sf, s)
	default:
		return false, fmt.Errorf("event type must be a string or a function, got %T", o.typ)
	}
	if target == nil {
		return false, fmt.Errorf("no target for event %q", typ)
	}

	st := &asyncState{}
	if o.delegate != nil {
		st.wasCancelled = o.delegate.AsyncWasCancelled
	}
	l := events.NewListener(func(ev events.Event) {
		if sf.async != st || sf.effectiveRate == 0 {
			return
		}
		t := s.currentTime()
		sf.now = sf.localAt(t)
		if d := o.delegate; d != nil && d.EventShouldBeIgnored != nil && d.EventShouldBeIgnored(ev, sf, s) {
			return
		}
		st.cancel()
		sf.async = nil
		sf.reanchor(t)
		var err error
		if d := o.delegate; d != nil && d.EventWasHandled != nil {
			err = d.EventWasHandled(ev, sf, s)
		}
		s.resume(sf)
		if err != nil {
			s.failFiber(sf, err)
		}
	})

	if et, ok := target.(events.EventTarget); ok {
		et.AddEventListener(typ, l)
		st.cancel = func() { et.RemoveEventListener(typ, l) }
	} else {
		s.bus.On(target, typ, l)
		st.cancel = func() { s.bus.Off(target, typ, l) }
	}
	sf.async = st
	return true, nil
}

func (s *Scheduler) execRamp(sf *ScheduledFiber, o *rampOp) (bool, error) {
	dur := o.dur
	if o.durFn != nil {
		var err error
		if dur, err = o.durFn(sf, s); err != nil {
			return false, newInvalidDurationError(sf.id, err)
		}
	}
	if math.IsNaN(dur) {
		return false, newInvalidDurationError(sf.id, nil)
	}

	if dur <= 0 || (math.IsInf(sf.effectiveRate, 1) && !math.IsInf(dur, 1)) {
		// Instantaneous: both ends of the ramp in the same instant.
		st := &rampState{begin: sf.now, dur: max(dur, 0), fn: o.fn}
		s.progress(sf, st, 0)
		sf.anchorLocal = sf.now + st.dur
		sf.anchorGlobal = s.now
		sf.now = sf.anchorLocal
		s.progress(sf, st, 1)
		return false, nil
	}

	st := &rampState{begin: sf.now, dur: dur, fn: o.fn}
	sf.ramp = st
	s.ramps = append(s.ramps, sf)
	if err := s.schedule(sf, sf.wakeTime(s.now)); err != nil {
		s.removeRamp(sf)
		return false, err
	}
	s.progress(sf, st, 0)
	if sf.ramp != st {
		// Cancelled by its own callback.
		s.unschedule(sf)
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) execJoin(sf *ScheduledFiber, o *joinOp) (bool, error) {
	if len(sf.children) == 0 {
		return false, nil
	}
	j := &Join{
		Fiber:    sf,
		Children: append([]*ScheduledFiber(nil), sf.children...),
		delegate: o.delegate,
	}
	// Children that ended before the join stay pending until they are
	// replayed, so delegates see the real remaining count.
	finished := sf.finished
	sf.finished = nil
	for _, c := range sf.children {
		if !c.ended || slices.Contains(finished, c) {
			j.pending = append(j.pending, c)
		}
	}
	sf.join = j
	if d := j.delegate; d != nil && d.FiberWillJoin != nil {
		d.FiberWillJoin(j, s)
	}
	for _, c := range finished {
		s.childDidJoin(j, c)
	}
	if len(j.pending) == 0 {
		s.endJoin(sf)
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) execRepeat(sf *ScheduledFiber, o *repeatOp) (bool, error) {
	st := sf.repeat
	if st == nil || st.op != o {
		st = &repeatState{op: o, iterationBegin: math.NaN()}
		if o.each {
			items, ok := itemsOf(sf.value)
			if !ok && sf.value != nil {
				items = []any{sf.value}
			}
			st.items = items
			st.values = make([]any, 0, len(st.items))
		}
		sf.repeat = st
	} else {
		if !o.each && (o.delegate == nil || o.delegate.RepeatShouldEnd == nil) && s.now == st.iterationBegin {
			sf.repeat = nil
			return false, newZeroDurationRepeatError(sf.id)
		}
		if o.each {
			st.values = append(st.values, sf.value)
		}
		st.count++
	}

	done := false
	switch {
	case o.each:
		done = st.count >= len(st.items)
	case o.delegate != nil && o.delegate.RepeatShouldEnd != nil:
		done = o.delegate.RepeatShouldEnd(st.count, sf, s)
	}
	if done {
		sf.repeat = nil
		if o.each {
			sf.value = st.values
		}
		return false, nil
	}

	st.iterationBegin = s.now
	value := sf.value
	if o.each {
		value = st.items[st.count]
	}
	// Come back to this op when the iteration ends.
	sf.ip--
	s.attachSingle(sf, o.body, value)
	return true, nil
}

// itemsOf returns the elements of a slice or array value.
func itemsOf(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
