package fiber

import (
	"context"
	"errors"
)

// Deferred is the eventual outcome of an asynchronous computation, awaited
// by an Await op.
//
// Thread-safety: Deferred is NOT safe for concurrent use. Settle it on the
// scheduler goroutine; Scheduler.Go does this for work done elsewhere.
type Deferred struct {
	settled bool
	value   any
	err     error
	subs    []*subscription

	// stop is called when every awaiting fiber gave up before the
	// deferred settled.
	stop func()
}

type subscription struct {
	fn func(v any, err error)
}

// NewDeferred creates an unsettled deferred.
func NewDeferred() *Deferred {
	return &Deferred{}
}

// Resolved creates a deferred resolved with v.
func Resolved(v any) *Deferred {
	d := NewDeferred()
	d.Resolve(v)
	return d
}

// Rejected creates a deferred rejected with err.
func Rejected(err error) *Deferred {
	d := NewDeferred()
	d.Reject(err)
	return d
}

// Resolve settles the deferred with a value. It returns false if the
// deferred was already settled.
func (d *Deferred) Resolve(v any) bool {
	return d.settle(v, nil)
}

// Reject settles the deferred with an error. A nil error is replaced by a
// generic one so that rejection is never mistaken for success.
func (d *Deferred) Reject(err error) bool {
	if err == nil {
		err = errors.New("rejected")
	}
	return d.settle(nil, err)
}

// Settled reports whether the deferred has a value or an error.
func (d *Deferred) Settled() bool { return d.settled }

// Result returns the outcome of a settled deferred.
func (d *Deferred) Result() (any, error) { return d.value, d.err }

func (d *Deferred) settle(v any, err error) bool {
	if d.settled {
		return false
	}
	d.settled = true
	d.value, d.err = v, err
	subs := d.subs
	d.subs = nil
	for _, sub := range subs {
		if sub.fn != nil {
			sub.fn(v, err)
		}
	}
	return true
}

// subscribe calls fn when the deferred settles. The returned function
// unsubscribes.
func (d *Deferred) subscribe(fn func(v any, err error)) func() {
	sub := &subscription{fn: fn}
	d.subs = append(d.subs, sub)
	return func() { sub.fn = nil }
}

// abandon calls stop when the deferred is unsettled and nothing waits for
// it anymore.
func (d *Deferred) abandon() {
	if d.settled || d.stop == nil {
		return
	}
	for _, sub := range d.subs {
		if sub.fn != nil {
			return
		}
	}
	d.stop()
}

// Go runs fn on a new goroutine and returns a deferred settled with its
// result. The deferred is settled on the scheduler goroutine through the
// clock's Post, so it is safe to await. The context passed to fn is
// cancelled once every fiber awaiting the deferred is cancelled.
func (s *Scheduler) Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Deferred {
	ctx, cancel := context.WithCancel(ctx)
	d := NewDeferred()
	d.stop = cancel
	go func() {
		defer cancel()
		v, err := fn(ctx)
		posted := s.clock.Post(func() {
			if err != nil {
				d.Reject(err)
			} else {
				d.Resolve(v)
			}
		})
		if !posted {
			s.logger.Warn("dropped async result: clock is closed", "error", err)
		}
	}()
	return d
}
