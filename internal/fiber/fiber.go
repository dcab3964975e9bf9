package fiber

// CallFunc computes a new value for the fiber.
type CallFunc func(f *ScheduledFiber, s *Scheduler) (any, error)

// EffectFunc runs for its side effects only.
type EffectFunc func(f *ScheduledFiber, s *Scheduler) error

// SyncFunc is an effect that cannot fail.
type SyncFunc func(f *ScheduledFiber, s *Scheduler)

// AsyncFunc starts an asynchronous computation.
type AsyncFunc func(f *ScheduledFiber, s *Scheduler) (*Deferred, error)

// DurationFunc computes a duration when the op runs.
type DurationFunc func(f *ScheduledFiber, s *Scheduler) (float64, error)

// RampFunc receives the progress p of a ramp, in [0, 1].
type RampFunc func(p float64, f *ScheduledFiber, s *Scheduler)

// instruction is an op plus its error tolerance, fixed at build time.
type instruction struct {
	op   op
	ever bool
}

// Fiber is a program: an immutable list of ops once it starts running.
// Build it with New and the chainable methods below; the same program may
// be scheduled or spawned any number of times.
type Fiber struct {
	ops       []instruction
	everDepth int
}

// New creates an empty program.
func New() *Fiber {
	return &Fiber{}
}

// Len returns the number of ops in the program.
func (p *Fiber) Len() int {
	return len(p.ops)
}

// Kinds lists the kinds of the ops in the program, in order.
func (p *Fiber) Kinds() []OpKind {
	kinds := make([]OpKind, len(p.ops))
	for i, in := range p.ops {
		kinds[i] = in.op.kind()
	}
	return kinds
}

func (p *Fiber) push(o op) *Fiber {
	p.ops = append(p.ops, instruction{op: o, ever: p.everDepth > 0})
	return p
}

// pushEver pushes an op that runs regardless of the fiber error.
func (p *Fiber) pushEver(o op) int {
	p.ops = append(p.ops, instruction{op: o, ever: true})
	return len(p.ops) - 1
}

// Call runs fn and sets the fiber value to its result.
func (p *Fiber) Call(fn CallFunc) *Fiber {
	return p.push(&callOp{fn: fn})
}

// Effect runs fn without changing the fiber value.
func (p *Fiber) Effect(fn EffectFunc) *Fiber {
	return p.push(&effectOp{fn: fn})
}

// Sync runs fn without changing the fiber value.
func (p *Fiber) Sync(fn SyncFunc) *Fiber {
	return p.push(&effectOp{fn: func(f *ScheduledFiber, s *Scheduler) error {
		fn(f, s)
		return nil
	}})
}

// Value sets the fiber value to v.
func (p *Fiber) Value(v any) *Fiber {
	return p.push(&callOp{fn: func(*ScheduledFiber, *Scheduler) (any, error) {
		return v, nil
	}})
}

// Await calls fn and waits for the returned deferred to settle. The
// delegate may be nil.
func (p *Fiber) Await(fn AsyncFunc, d *AsyncDelegate) *Fiber {
	return p.push(&awaitOp{fn: fn, delegate: d})
}

// Event waits for an event of the given type from target. Both target and
// typ may be static values or functions of (fiber, scheduler):
//
//	target: any, or func(*ScheduledFiber, *Scheduler) any
//	typ:    string, or func(*ScheduledFiber, *Scheduler) string
//
// A target implementing events.EventTarget is subscribed to directly; any
// other target is a source on the scheduler's bus. The delegate may be nil.
func (p *Fiber) Event(target any, typ any, d *EventDelegate) *Fiber {
	return p.push(&eventOp{target: target, typ: typ, delegate: d})
}

// Ramp calls fn with a progress going from 0 to 1 over dur milliseconds of
// local time. fn may be nil.
func (p *Fiber) Ramp(dur float64, fn RampFunc) *Fiber {
	return p.push(&rampOp{dur: dur, fn: fn})
}

// RampWith is Ramp with a duration computed when the op runs.
func (p *Fiber) RampWith(dur DurationFunc, fn RampFunc) *Fiber {
	return p.push(&rampOp{durFn: dur, fn: fn})
}

// Delay waits for dur milliseconds of local time.
func (p *Fiber) Delay(dur float64) *Fiber {
	return p.push(&rampOp{dur: dur})
}

// DelayWith is Delay with a duration computed when the op runs.
func (p *Fiber) DelayWith(dur DurationFunc) *Fiber {
	return p.push(&rampOp{durFn: dur})
}

// Spawn starts a child fiber running the program built by body, and
// continues without waiting for it.
func (p *Fiber) Spawn(body func(*Fiber)) *Fiber {
	child := New()
	body(child)
	return p.SpawnFiber(child)
}

// SpawnFiber starts a child fiber running an existing program.
func (p *Fiber) SpawnFiber(child *Fiber) *Fiber {
	return p.push(&spawnOp{child: child})
}

// Join waits for the children spawned since the last join. It does nothing
// when there are none. The delegate may be nil, in which case child values
// and errors are ignored.
func (p *Fiber) Join(d *JoinDelegate) *Fiber {
	return p.push(&joinOp{delegate: d})
}

// Seq runs child as a single child and waits for it, taking its value and
// error.
func (p *Fiber) Seq(child *Fiber) *Fiber {
	return p.push(&seqOp{child: child})
}

// Repeat runs body as a single child again and again. The delegate decides
// when to stop; without one, the loop only ends with an error, and an
// iteration that takes no time fails the fiber.
func (p *Fiber) Repeat(body func(*Fiber), d *RepeatDelegate) *Fiber {
	child := New()
	body(child)
	return p.push(&repeatOp{body: child, delegate: d})
}

// Each runs body once per item of the fiber value (a slice or array), in
// sequence. Each iteration starts with the item as its value; the fiber
// value becomes the list of iteration results.
func (p *Fiber) Each(body func(*Fiber)) *Fiber {
	child := New()
	body(child)
	return p.push(&repeatOp{body: child, each: true})
}

// Map spawns one child per item of the fiber value (a slice or array), each
// starting with the item as its value. Follow with Join(All()) to collect.
func (p *Fiber) Map(body func(*Fiber)) *Fiber {
	child := New()
	body(child)
	return p.push(&mapOp{body: child})
}

// Ever marks the ops built by body as error tolerant: they run even when
// the fiber carries an error.
func (p *Fiber) Ever(body func(*Fiber)) *Fiber {
	p.everDepth++
	body(p)
	p.everDepth--
	return p
}

// Either runs onValue when the fiber has no error, and onError when it has
// one, either on entry or raised by onValue. An error handled by onError is
// cleared when the branch ends, unless the branch raised another one. With
// a nil onError the error propagates.
func (p *Fiber) Either(onValue, onError func(*Fiber)) *Fiber {
	begin := &eitherBeginOp{}
	p.pushEver(begin)
	if onValue != nil {
		onValue(p)
	}
	if onError == nil {
		return p
	}
	begin.hasElse = true
	els := &eitherElseOp{}
	begin.elseIP = p.pushEver(els)
	p.everDepth++
	onError(p)
	p.everDepth--
	end := p.pushEver(&eitherEndOp{})
	begin.endIP = end
	els.endIP = end
	return p
}

// Named registers the fiber under name in the scheduler.
func (p *Fiber) Named(name string) *Fiber {
	return p.push(&namedOp{name: name})
}

// Store binds the fiber value to key in the fiber scope.
func (p *Fiber) Store(key string) *Fiber {
	return p.push(&storeOp{key: key})
}
