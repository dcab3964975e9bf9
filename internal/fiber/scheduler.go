package fiber

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tempo/internal/clock"
	"github.com/roach88/tempo/internal/events"
	"github.com/roach88/tempo/internal/pqueue"
)

// DefaultMaxRunsPerInstant is the default number of times a fiber may be
// resumed within a single instant before it fails as a runaway.
const DefaultMaxRunsPerInstant = 10000

// Scheduler drives fibers along the virtual time of its clock.
//
// Thread-safety model:
//   - all methods must be called from the goroutine that drives the clock
//   - Go and the clock's Post are the only ways in from other goroutines
//
// INVARIANTS:
//   - a fiber is registered at most once in instantsByFiber
//   - ramps holds a fiber iff it is inside an unfinished ramp
//   - instants holds every finite key of fibersByInstant (possibly more)
//   - Update is never re-entered
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger
	bus    *events.Bus

	instants        *pqueue.Queue[float64]
	fibersByInstant map[float64][]*ScheduledFiber
	instantsByFiber map[*ScheduledFiber]float64
	fibers          map[*ScheduledFiber]struct{}
	ramps           []*ScheduledFiber // in ramp begin order
	fiberByName     map[string]*ScheduledFiber
	observers       []Observer

	now      float64
	updating bool
	draining bool
	current  *ScheduledFiber

	// Same-instant work while draining an instant.
	queue   []*ScheduledFiber
	spawns  []*ScheduledFiber
	resumes []*ScheduledFiber

	nextID  int
	maxRuns int
	runs    map[*ScheduledFiber]int
}

// Option configures a scheduler.
type Option func(*Scheduler)

// WithClock sets the clock. The default is a manual clock at 0.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger. Uncaught fiber errors are logged at Error.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, o)
	}
}

// WithBus sets the bus used for event targets that are not EventTargets.
func WithBus(b *events.Bus) Option {
	return func(s *Scheduler) {
		s.bus = b
	}
}

// WithMaxRunsPerInstant sets the runaway guard.
//
// Default: 10000 (DefaultMaxRunsPerInstant)
func WithMaxRunsPerInstant(n int) Option {
	return func(s *Scheduler) {
		s.maxRuns = n
	}
}

// NewScheduler creates a scheduler and attaches it to its clock.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		instants:        pqueue.NewMin[float64](),
		fibersByInstant: make(map[float64][]*ScheduledFiber),
		instantsByFiber: make(map[*ScheduledFiber]float64),
		fibers:          make(map[*ScheduledFiber]struct{}),
		fiberByName:     make(map[string]*ScheduledFiber),
		runs:            make(map[*ScheduledFiber]int),
		maxRuns:         DefaultMaxRunsPerInstant,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.NewManual()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	s.clock.Attach(s)
	return s
}

// Clock returns the scheduler clock.
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Bus returns the event bus.
func (s *Scheduler) Bus() *events.Bus { return s.bus }

// Notify sends an event on the bus.
func (s *Scheduler) Notify(source any, typ string, payload any) events.Event {
	return s.bus.Notify(source, typ, payload)
}

// Now returns the current scheduler time: the instant being processed
// during an update, the clock time otherwise.
func (s *Scheduler) Now() float64 { return s.currentTime() }

func (s *Scheduler) currentTime() float64 {
	if s.updating {
		return s.now
	}
	return s.clock.Now()
}

// Idle reports whether no fiber is active.
func (s *Scheduler) Idle() bool { return len(s.fibers) == 0 }

// ActiveFibers returns the number of fibers that have not ended.
func (s *Scheduler) ActiveFibers() int { return len(s.fibers) }

// Spawn runs a new top-level instance of program from the current time.
func (s *Scheduler) Spawn(program *Fiber) *ScheduledFiber {
	sf, _ := s.ScheduleFiber(program, s.currentTime())
	return sf
}

// ScheduleFiber runs a new top-level instance of program from time t. A
// time in the past is moved to the current time; an infinite time means
// the fiber never begins (unless cancelled).
func (s *Scheduler) ScheduleFiber(program *Fiber, t float64) (*ScheduledFiber, error) {
	if math.IsNaN(t) {
		return nil, &FiberError{Code: ErrCodeInvalidTime, Message: "time is NaN"}
	}
	s.nextID++
	sf := newScheduledFiber(s.nextID, program, nil)
	if err := s.schedule(sf, t); err != nil {
		return nil, err
	}
	return sf, nil
}

// RescheduleFiber moves an active fiber to time t. It has no effect on a
// fiber that already ended.
func (s *Scheduler) RescheduleFiber(sf *ScheduledFiber, t float64) error {
	if _, ok := s.fibers[sf]; !ok {
		return nil
	}
	return s.reschedule(sf, t)
}

// schedule registers sf to run at time t.
func (s *Scheduler) schedule(sf *ScheduledFiber, t float64) error {
	if _, ok := s.instantsByFiber[sf]; ok {
		return &FiberError{Code: ErrCodeAlreadyScheduled, Message: "fiber is already scheduled", FiberID: sf.id}
	}
	if math.IsNaN(t) {
		return &FiberError{Code: ErrCodeInvalidTime, Message: "time is NaN", FiberID: sf.id}
	}
	t = max(t, s.currentTime())
	s.fibers[sf] = struct{}{}
	s.instantsByFiber[sf] = t
	switch {
	case math.IsInf(t, 1):
		// Pending forever.
	case s.draining && t == s.now:
		s.resumes = append(s.resumes, sf)
	default:
		bucket, ok := s.fibersByInstant[t]
		if !ok {
			s.instants.Insert(t)
		}
		s.fibersByInstant[t] = append(bucket, sf)
		s.clock.Advance()
	}
	return nil
}

// unschedule removes sf from wherever it is scheduled.
func (s *Scheduler) unschedule(sf *ScheduledFiber) {
	t, ok := s.instantsByFiber[sf]
	if !ok {
		return
	}
	delete(s.instantsByFiber, sf)
	if math.IsInf(t, 1) {
		return
	}
	if s.draining && t == s.now {
		s.queue = removeFiber(s.queue, sf)
		s.spawns = removeFiber(s.spawns, sf)
		s.resumes = removeFiber(s.resumes, sf)
		return
	}
	if bucket := removeFiber(s.fibersByInstant[t], sf); len(bucket) > 0 {
		s.fibersByInstant[t] = bucket
	} else {
		// The instant stays in the heap and is skipped when popped.
		delete(s.fibersByInstant, t)
	}
}

func (s *Scheduler) reschedule(sf *ScheduledFiber, t float64) error {
	if math.IsNaN(t) {
		return &FiberError{Code: ErrCodeInvalidTime, Message: "time is NaN", FiberID: sf.id}
	}
	if cur, ok := s.instantsByFiber[sf]; ok {
		if cur == max(t, s.currentTime()) {
			return nil
		}
		s.unschedule(sf)
	}
	return s.schedule(sf, t)
}

// resume schedules a waiting fiber at the current time, or holds it while
// it is paused.
func (s *Scheduler) resume(sf *ScheduledFiber) {
	if sf.ended {
		return
	}
	t := s.currentTime()
	if sf.effectiveRate == 0 {
		sf.held = true
		t = math.Inf(1)
	}
	if err := s.reschedule(sf, t); err != nil {
		s.logger.Error("cannot resume fiber", "fiber", sf.id, "error", err)
	}
}

func removeFiber(fibers []*ScheduledFiber, sf *ScheduledFiber) []*ScheduledFiber {
	return slices.DeleteFunc(fibers, func(f *ScheduledFiber) bool { return f == sf })
}

// AttachFiber spawns a new instance of program as a child of parent. The
// child begins at the current instant, before the rest of the instant when
// an update is in progress.
func (s *Scheduler) AttachFiber(parent *ScheduledFiber, program *Fiber) *ScheduledFiber {
	return s.attach(parent, program, parent.value)
}

func (s *Scheduler) attach(parent *ScheduledFiber, program *Fiber, value any) *ScheduledFiber {
	child := s.newChild(parent, program, value)
	parent.children = append(parent.children, child)
	if j := parent.join; j != nil {
		j.Children = append(j.Children, child)
		j.pending = append(j.pending, child)
	}
	if s.draining {
		s.fibers[child] = struct{}{}
		s.instantsByFiber[child] = s.now
		s.spawns = append(s.spawns, child)
	} else if err := s.schedule(child, s.currentTime()); err != nil {
		s.logger.Error("cannot schedule child fiber", "fiber", child.id, "error", err)
	}
	return child
}

// attachSingle spawns the single child of a seq or repeat op. It runs
// before any other spawn of the instant.
func (s *Scheduler) attachSingle(parent *ScheduledFiber, program *Fiber, value any) *ScheduledFiber {
	child := s.newChild(parent, program, value)
	parent.child = child
	s.fibers[child] = struct{}{}
	s.instantsByFiber[child] = s.now
	s.spawns = slices.Insert(s.spawns, 0, child)
	return child
}

func (s *Scheduler) newChild(parent *ScheduledFiber, program *Fiber, value any) *ScheduledFiber {
	s.nextID++
	child := newScheduledFiber(s.nextID, program, parent)
	child.value = value
	return child
}

// CancelFiber cancels an active fiber by setting its error to ErrCancelled.
// Inside an error tolerant op, the cancellation is a regular error for the
// fiber to handle. Otherwise the fiber stops waiting (its children are
// cancelled too) and unwinds at the current instant. Cancelling a fiber
// that ended, or that is already cancelled, does nothing.
func (s *Scheduler) CancelFiber(sf *ScheduledFiber) {
	if sf == nil || IsCancelled(sf.err) {
		return
	}
	if _, ok := s.fibers[sf]; !ok {
		return
	}
	sf.setErr(ErrCancelled)
	s.logger.Debug("fiber cancelled", "fiber", sf.id)
	for _, o := range s.observers {
		o.FiberDidFail(sf, ErrCancelled)
	}
	if sf.handlesErrors() {
		return
	}

	if a := sf.async; a != nil {
		sf.async = nil
		if a.cancel != nil {
			a.cancel()
		}
		if a.wasCancelled != nil {
			a.wasCancelled(sf, s)
		}
	}
	if sf.ramp != nil {
		s.removeRamp(sf)
	}
	if sf.child != nil {
		s.CancelFiber(sf.child)
	}
	for _, c := range slices.Clone(sf.children) {
		if !c.ended {
			s.CancelFiber(c)
		}
	}
	if sf.child == nil && sf.join == nil && sf != s.current {
		sf.held = false
		if err := s.reschedule(sf, s.currentTime()); err != nil {
			s.logger.Error("cannot reschedule cancelled fiber", "fiber", sf.id, "error", err)
		}
	}
}

// failFiber sets the error of sf. Unless sf handles errors, the children it
// waits for are cancelled.
func (s *Scheduler) failFiber(sf *ScheduledFiber, err error) {
	sf.setErr(err)
	s.logger.Debug("fiber failed", "fiber", sf.id, "error", err)
	for _, o := range s.observers {
		o.FiberDidFail(sf, err)
	}
	if sf.handlesErrors() {
		return
	}
	if sf.child != nil {
		s.CancelFiber(sf.child)
	}
	if sf.join != nil {
		for _, c := range sf.join.Pending() {
			s.CancelFiber(c)
		}
	}
}

// SetRateForFiber sets the own rate of sf. The effective rates of sf and
// its descendants change accordingly, and a ramp in progress is retargeted
// so that its local duration is preserved. 0 pauses, a negative rate runs
// backward, +Inf runs instantly.
func (s *Scheduler) SetRateForFiber(sf *ScheduledFiber, rate float64) {
	if math.IsNaN(rate) {
		s.logger.Warn("ignoring NaN rate", "fiber", sf.id)
		return
	}
	sf.rate = rate
	parentRate := 1.0
	if sf.parent != nil {
		parentRate = sf.parent.effectiveRate
	}
	s.setEffectiveRate(sf, mulRate(rate, parentRate))
}

func (s *Scheduler) setEffectiveRate(sf *ScheduledFiber, rate float64) {
	if sf.ended || sf.effectiveRate == rate {
		return
	}
	t := s.currentTime()
	sf.reanchor(t)
	sf.effectiveRate = rate

	switch {
	case sf.ramp != nil:
		if err := s.reschedule(sf, sf.wakeTime(t)); err != nil {
			s.logger.Error("cannot retarget ramp", "fiber", sf.id, "error", err)
		}
	case sf.held && rate != 0:
		sf.held = false
		if err := s.reschedule(sf, t); err != nil {
			s.logger.Error("cannot resume fiber", "fiber", sf.id, "error", err)
		}
	}

	if c := sf.child; c != nil {
		s.setEffectiveRate(c, mulRate(c.rate, rate))
	}
	for _, c := range sf.children {
		s.setEffectiveRate(c, mulRate(c.rate, rate))
	}
}

// SetRampDurationForFiber changes the duration of the ramp sf is in,
// possibly cutting it short. It has no effect outside of a ramp.
func (s *Scheduler) SetRampDurationForFiber(sf *ScheduledFiber, dur float64) error {
	if !(dur >= 0) {
		return newInvalidDurationError(sf.id, fmt.Errorf("got %v", dur))
	}
	st := sf.ramp
	if st == nil || st.dur == dur {
		return nil
	}
	st.dur = dur
	t := s.currentTime()
	sf.reanchor(t)
	return s.reschedule(sf, sf.wakeTime(t))
}

// SetNameForFiber registers sf under name (NFC normalized). Names are
// unique among active fibers; an empty name removes the registration.
func (s *Scheduler) SetNameForFiber(sf *ScheduledFiber, name string) error {
	name = norm.NFC.String(name)
	if name == sf.name {
		return nil
	}
	if name == "" {
		s.RemoveNameForFiber(sf)
		return nil
	}
	if other, ok := s.fiberByName[name]; ok && other != sf {
		return newNameInUseError(name, sf.id)
	}
	s.RemoveNameForFiber(sf)
	s.fiberByName[name] = sf
	sf.name = name
	return nil
}

// RemoveNameForFiber removes the registered name of sf, if any.
func (s *Scheduler) RemoveNameForFiber(sf *ScheduledFiber) {
	if sf.name == "" {
		return
	}
	if s.fiberByName[sf.name] == sf {
		delete(s.fiberByName, sf.name)
	}
	sf.name = ""
}

// FiberByName returns the active fiber registered under name.
func (s *Scheduler) FiberByName(name string) (*ScheduledFiber, bool) {
	sf, ok := s.fiberByName[norm.NFC.String(name)]
	return sf, ok
}

// Update runs every instant in [begin, end) in order, then reports the
// progress of ramps at end. It implements clock.Target.
func (s *Scheduler) Update(begin, end float64) {
	if s.updating {
		s.logger.Error("scheduler update re-entered", "begin", begin, "end", end)
		return
	}
	s.updating = true
	defer func() { s.updating = false }()

	for {
		t, ok := s.instants.Peek()
		if !ok || !(t < end) {
			break
		}
		s.instants.Remove()
		bucket := s.fibersByInstant[t]
		delete(s.fibersByInstant, t)
		if len(bucket) > 0 {
			s.runInstant(t, bucket)
		}
	}

	s.now = end
	s.sweepRamps()

	if s.instants.Len() > 0 || len(s.ramps) > 0 {
		s.clock.Advance()
	}
	idle := len(s.fibers) == 0
	s.logger.Debug("scheduler update", "begin", begin, "end", end, "fibers", len(s.fibers), "ramps", len(s.ramps))
	for _, o := range s.observers {
		o.SchedulerDidUpdate(begin, end, idle)
	}
}

// runInstant drains the fibers due at t, depth first.
func (s *Scheduler) runInstant(t float64, bucket []*ScheduledFiber) {
	s.now = t
	s.draining = true
	clear(s.runs)
	s.queue = bucket
	for len(s.queue) > 0 {
		sf := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.instantsByFiber, sf)
		s.spawns, s.resumes = nil, nil
		s.runFiber(sf)
		if n := len(s.spawns) + len(s.resumes); n > 0 {
			next := make([]*ScheduledFiber, 0, n+len(s.queue))
			next = append(next, s.spawns...)
			next = append(next, s.resumes...)
			s.queue = append(next, s.queue...)
		}
	}
	s.queue, s.spawns, s.resumes = nil, nil, nil
	s.draining = false
}

// runFiber resumes sf until it yields or ends.
func (s *Scheduler) runFiber(sf *ScheduledFiber) {
	if sf.ended {
		return
	}
	s.current = sf
	defer func() { s.current = nil }()

	if !sf.begun {
		sf.begun = true
		sf.anchorGlobal = s.now
		sf.anchorLocal = 0
		sf.now = 0
		for _, o := range s.observers {
			o.FiberDidBegin(sf)
		}
	} else {
		sf.reanchor(s.now)
	}
	sf.held = false

	if sf.ramp != nil {
		s.endRamp(sf)
	}

	s.runs[sf]++
	if n := s.runs[sf]; n > s.maxRuns && sf.err == nil {
		s.failFiber(sf, newQuotaError(sf.id, n, s.maxRuns))
	}

	if s.interpret(sf) {
		s.fiberDidEnd(sf)
	}
}

// interpret runs ops from ip. It returns true when the program ended.
func (s *Scheduler) interpret(sf *ScheduledFiber) bool {
	for sf.ip < len(sf.ops) {
		in := sf.ops[sf.ip]
		sf.ip++
		if sf.err != nil && !in.ever {
			continue
		}
		sf.last = sf.ip - 1
		for _, o := range s.observers {
			o.OpWillRun(sf, sf.last, in.op.kind())
		}
		yield, err := s.exec(sf, in.op)
		if err != nil {
			s.failFiber(sf, err)
		}
		if yield {
			return false
		}
	}
	return true
}

// endRamp finishes the ramp of a fiber that reached its wake instant.
func (s *Scheduler) endRamp(sf *ScheduledFiber) {
	st := sf.ramp
	s.removeRamp(sf)
	if end := st.begin + st.dur; sf.now < end && !math.IsInf(end, 0) {
		sf.anchorLocal, sf.anchorGlobal, sf.now = end, s.now, end
	}
	s.progress(sf, st, 1)
}

func (s *Scheduler) removeRamp(sf *ScheduledFiber) {
	sf.ramp = nil
	s.ramps = removeFiber(s.ramps, sf)
}

// sweepRamps reports progress for every ramp in progress at s.now.
func (s *Scheduler) sweepRamps() {
	for _, sf := range slices.Clone(s.ramps) {
		st := sf.ramp
		if st == nil || st.fn == nil || sf.effectiveRate == 0 {
			continue
		}
		sf.now = sf.localAt(s.now)
		if p := st.progressAt(sf.now); p < 1 {
			s.progress(sf, st, p)
		}
	}
}

// progress reports p to the ramp callback and observers. Delays have no
// callback and report nothing.
func (s *Scheduler) progress(sf *ScheduledFiber, st *rampState, p float64) {
	if st.fn == nil {
		return
	}
	st.fn(p, sf, s)
	for _, o := range s.observers {
		o.RampDidProgress(sf, p)
	}
}

// fiberDidEnd is called when sf reached the end of its program.
func (s *Scheduler) fiberDidEnd(sf *ScheduledFiber) {
	delete(s.fibers, sf)
	delete(s.runs, sf)
	sf.ended = true
	s.RemoveNameForFiber(sf)
	for _, o := range s.observers {
		o.FiberDidEnd(sf)
	}

	parent := sf.parent
	if sf.err != nil && !IsCancelled(sf.err) {
		if parent == nil {
			s.logger.Error("uncaught fiber error", "fiber", sf.id, "error", sf.err)
		} else {
			s.logger.Warn("child fiber ended with error", "fiber", sf.id, "parent", parent.id, "error", sf.err)
		}
	}
	if parent != nil && s.childFiberDidEnd(parent, sf) {
		s.resume(parent)
	}
}

// childFiberDidEnd reports the end of child to parent. It returns true when
// the parent should resume.
func (s *Scheduler) childFiberDidEnd(parent, child *ScheduledFiber) bool {
	if parent.child == child {
		parent.child = nil
		parent.now = parent.localAt(s.now)
		parent.value = child.value
		if child.err != nil && parent.err == nil {
			s.failFiber(parent, child.err)
		}
		if parent.err != nil {
			parent.repeat = nil
		}
		return true
	}
	if !slices.Contains(parent.children, child) {
		return false
	}
	j := parent.join
	if j == nil {
		parent.finished = append(parent.finished, child)
		return false
	}
	parent.now = parent.localAt(s.now)
	s.childDidJoin(j, child)
	if len(j.pending) == 0 {
		s.endJoin(parent)
		return true
	}
	return false
}

func (s *Scheduler) childDidJoin(j *Join, child *ScheduledFiber) {
	j.pending = removeFiber(j.pending, child)
	if d := j.delegate; d != nil && d.ChildFiberDidJoin != nil {
		d.ChildFiberDidJoin(j, child, s)
	}
}

func (s *Scheduler) endJoin(sf *ScheduledFiber) {
	sf.join = nil
	sf.children = nil
	sf.finished = nil
}
