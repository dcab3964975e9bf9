// Package fiber implements a deterministic, time-driven cooperative scheduler.
//
// A Fiber is a static program: an ordered list of ops built with a fluent
// builder (Call, Effect, Await, Event, Ramp, Spawn, Join, Repeat, Ever,
// Either, ...). A ScheduledFiber is one execution of a program, with its own
// instruction pointer, local time, value, error, and links to its parent and
// children. The Scheduler owns the instant queue and drives fibers forward
// on every tick of its clock.
//
// ARCHITECTURE:
//
// Virtual time:
// The scheduler never reads wall-clock time. Its clock emits tick(begin, end)
// and the scheduler runs every instant in [begin, end) in time order, then
// reports ramp progress at end. With a manual clock, setting the time runs
// the implied tick synchronously, which makes every run reproducible.
//
// Instant processing:
// Fibers due at the same instant run in the order they were scheduled.
// Fibers spawned or resumed while an instant is processed are spliced in
// front of the rest of that instant's queue (spawns first, then resumed
// parents), so reactions compound depth-first before time moves on.
//
// Rates:
// Each fiber has its own rate (1 by default, 0 pauses, negative runs
// backward, +Inf is instantaneous). Local time advances at the product of
// the rates along the parent chain. Changing a rate mid-ramp retargets the
// fiber's wake instant so that local durations are preserved.
//
// Errors:
// An op that fails stores its error on the fiber; subsequent ops are skipped
// unless they were built inside an Ever block (or are part of an Either
// error branch). Cancellation sets the ErrCancelled sentinel and follows the
// same rule. Errors surface at the top-level fiber through the logger.
//
// Thread-safety:
// The scheduler is single-threaded. All methods must be called from the
// goroutine that drives the clock. Other goroutines hand results back with
// Scheduler.Go or the clock's Post.
package fiber
