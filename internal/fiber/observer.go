package fiber

// Observer receives notifications from a scheduler. They are delivered
// synchronously on the scheduler goroutine, in order.
type Observer interface {
	// FiberDidBegin is called when a fiber runs for the first time.
	FiberDidBegin(f *ScheduledFiber)

	// OpWillRun is called before each op that is not skipped. ip is the
	// index of the op in the program.
	OpWillRun(f *ScheduledFiber, ip int, kind OpKind)

	// FiberDidFail is called when a fiber gets an error, including
	// cancellation.
	FiberDidFail(f *ScheduledFiber, err error)

	// FiberDidEnd is called when a fiber reaches the end of its program.
	FiberDidEnd(f *ScheduledFiber)

	// RampDidProgress is called for every progress value of a ramp.
	RampDidProgress(f *ScheduledFiber, p float64)

	// SchedulerDidUpdate is called at the end of every update; idle is true
	// when no fiber is left.
	SchedulerDidUpdate(begin, end float64, idle bool)
}

// NopObserver implements Observer with no-ops. Embed it to implement only
// some of the methods.
type NopObserver struct{}

func (NopObserver) FiberDidBegin(*ScheduledFiber)             {}
func (NopObserver) OpWillRun(*ScheduledFiber, int, OpKind)    {}
func (NopObserver) FiberDidFail(*ScheduledFiber, error)       {}
func (NopObserver) FiberDidEnd(*ScheduledFiber)               {}
func (NopObserver) RampDidProgress(*ScheduledFiber, float64)  {}
func (NopObserver) SchedulerDidUpdate(float64, float64, bool) {}
