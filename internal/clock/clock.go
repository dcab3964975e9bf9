// Package clock provides the time sources that drive a scheduler.
//
// A clock emits tick(begin, end) notifications to its attached Target,
// covering the interval of time elapsed since the previous tick. Times are
// float64 milliseconds; math.Inf(1) means "never". Ticks are monotonic:
// the begin of a tick is the end of the previous one.
//
// Two implementations are provided:
//
//   - Manual: time only moves when SetNow (or Step) is called, which
//     synchronously ticks the target for the implied interval. This is the
//     seam that makes deterministic tests possible.
//   - Realtime: a frame ticker that ticks while playing and while the
//     target requested an advance.
//
// Both clocks also act as the event loop for their target: functions handed
// to Post from any goroutine run on the goroutine that drives the clock.
package clock

// Target receives ticks from a clock. The scheduler implements it.
type Target interface {
	Update(begin, end float64)
}

// Clock is the contract between a scheduler and its time source.
type Clock interface {
	// Attach sets the target that receives ticks.
	Attach(target Target)

	// Now returns the current time of the clock.
	Now() float64

	// Advance requests a future tick. It is a no-op when a tick is already
	// pending or when the clock is not playing.
	Advance()

	// Start starts the clock.
	Start()

	// Stop stops the clock and resets its time.
	Stop()

	// Post schedules fn to run on the goroutine driving the clock, before
	// the next tick. Safe to call from any goroutine.
	Post(fn func()) bool
}

// Manual is a clock that only moves when told to.
//
// Thread-safety: only Post is safe for concurrent use. All other methods
// must be called from the goroutine that owns the scheduler.
type Manual struct {
	current   float64
	target    Target
	requested bool
	mailbox   *mailbox
}

// NewManual creates a manual clock at time 0.
func NewManual() *Manual {
	return &Manual{mailbox: newMailbox()}
}

// NewManualAt creates a manual clock at a specific time.
func NewManualAt(t float64) *Manual {
	c := NewManual()
	c.current = t
	return c
}

// Attach sets the target that receives ticks.
func (c *Manual) Attach(target Target) {
	c.target = target
}

// Now returns the current time.
func (c *Manual) Now() float64 {
	return c.current
}

// SetNow moves the clock forward to t, runs posted functions, then ticks
// the target with [previous, t). Setting a time at or before the current
// time only runs posted functions.
func (c *Manual) SetNow(t float64) {
	c.mailbox.Drain()
	if !(t > c.current) {
		return
	}
	begin := c.current
	c.current = t
	c.requested = false
	if c.target != nil {
		c.target.Update(begin, t)
	}
}

// Step moves the clock forward by dt.
func (c *Manual) Step(dt float64) {
	c.SetNow(c.current + dt)
}

// Advance records that the target wants another tick. Manual clocks never
// tick on their own; see Requested.
func (c *Manual) Advance() {
	c.requested = true
}

// Requested reports whether the target asked for a tick since the last one.
func (c *Manual) Requested() bool {
	return c.requested
}

// Start is a no-op for a manual clock.
func (c *Manual) Start() {}

// Stop resets the clock to 0 without ticking.
func (c *Manual) Stop() {
	c.current = 0
	c.requested = false
}

// Post queues fn until the next SetNow or Flush.
func (c *Manual) Post(fn func()) bool {
	return c.mailbox.Post(fn)
}

// Flush runs posted functions without moving time.
// Returns the number of functions run.
func (c *Manual) Flush() int {
	return c.mailbox.Drain()
}
