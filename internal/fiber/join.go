package fiber

import (
	"slices"
)

// JoinDelegate customizes a Join op. Nil callbacks do nothing.
type JoinDelegate struct {
	// FiberWillJoin is called when the join begins.
	FiberWillJoin func(j *Join, s *Scheduler)

	// ChildFiberDidJoin is called every time a child ends, in the order in
	// which they end.
	ChildFiberDidJoin func(j *Join, child *ScheduledFiber, s *Scheduler)
}

// Join is the state of a fiber waiting for its children.
type Join struct {
	// Fiber is the joining fiber.
	Fiber *ScheduledFiber

	// Children are the joined children, in spawn order.
	Children []*ScheduledFiber

	// Values is scratch space for delegates.
	Values []any

	pending  []*ScheduledFiber
	delegate *JoinDelegate
	resolved bool
	failed   bool
}

// Pending returns the children that have not joined yet. A child that
// ended before the join began stays pending until it is replayed.
func (j *Join) Pending() []*ScheduledFiber {
	return append([]*ScheduledFiber(nil), j.pending...)
}

// Index returns the spawn position of child, or -1.
func (j *Join) Index(child *ScheduledFiber) int {
	return slices.Index(j.Children, child)
}

// CancelSiblings cancels every pending child that is still running. The
// join still waits for them to unwind.
func (j *Join) CancelSiblings(s *Scheduler) {
	for _, c := range j.Pending() {
		s.CancelFiber(c)
	}
}

// Resolve marks the join as decided. It returns false if it already was.
func (j *Join) Resolve() bool {
	if j.resolved {
		return false
	}
	j.resolved = true
	return true
}

// Resolved reports whether Resolve was called.
func (j *Join) Resolved() bool { return j.resolved }

// Fail fails the joining fiber with err, once.
func (j *Join) Fail(s *Scheduler, err error) {
	if j.failed {
		return
	}
	j.failed = true
	s.failFiber(j.Fiber, err)
}

// Failed reports whether Fail was called.
func (j *Join) Failed() bool { return j.failed }

// All collects child values in spawn order. The first child error cancels
// the remaining children and fails the fiber.
func All() *JoinDelegate {
	return &JoinDelegate{
		FiberWillJoin: func(j *Join, s *Scheduler) {
			j.Values = make([]any, len(j.Children))
		},
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			if j.failed {
				return
			}
			if err := child.Err(); err != nil {
				j.CancelSiblings(s)
				j.Fail(s, err)
				return
			}
			if n := len(j.Children); len(j.Values) < n {
				j.Values = append(j.Values, make([]any, n-len(j.Values))...)
			}
			if i := j.Index(child); i >= 0 {
				j.Values[i] = child.Value()
			}
			if len(j.pending) == 0 {
				j.Fiber.value = j.Values
			}
		},
	}
}

// Last collects child values in the order in which the children end. The
// first child error cancels the remaining children and fails the fiber.
func Last() *JoinDelegate {
	return &JoinDelegate{
		FiberWillJoin: func(j *Join, s *Scheduler) {
			j.Values = make([]any, 0, len(j.Children))
		},
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			if j.failed {
				return
			}
			if err := child.Err(); err != nil {
				j.CancelSiblings(s)
				j.Fail(s, err)
				return
			}
			j.Values = append(j.Values, child.Value())
			if len(j.pending) == 0 {
				j.Fiber.value = j.Values
			}
		},
	}
}

// Gate ends the join with the first child that ends without error, and
// cancels the others. Child errors are ignored unless every child fails, in
// which case the last error fails the fiber.
func Gate() *JoinDelegate {
	return &JoinDelegate{ChildFiberDidJoin: gate(false)}
}

// First is Gate, also taking the value of the winning child.
func First() *JoinDelegate {
	return &JoinDelegate{ChildFiberDidJoin: gate(true)}
}

func gate(takeValue bool) func(j *Join, child *ScheduledFiber, s *Scheduler) {
	return func(j *Join, child *ScheduledFiber, s *Scheduler) {
		if j.resolved {
			return
		}
		if err := child.Err(); err != nil {
			if len(j.pending) == 0 {
				j.Fail(s, err)
			}
			return
		}
		j.Resolve()
		if takeValue {
			j.Fiber.value = child.Value()
		}
		j.CancelSiblings(s)
	}
}

// Single takes the value or the error of the (last) child to end.
func Single() *JoinDelegate {
	return &JoinDelegate{
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			if err := child.Err(); err != nil {
				j.Fail(s, err)
				return
			}
			j.Fiber.value = child.Value()
		},
	}
}
