// Package pqueue implements a binary heap with a pluggable comparison.
//
// The scheduler uses it to keep the distinct instants at which fibers are
// due, in increasing order. The heap does not suppress duplicates: callers
// that need set semantics (the scheduler does) dedup before inserting.
package pqueue

import (
	"cmp"
	"iter"
)

// Queue is a binary heap ordered by cmp. With cmp returning a negative value
// when a < b the root is the minimum; flip the arguments for a max-heap.
//
// Thread-safety: Queue is NOT safe for concurrent use. The scheduler only
// touches it from its update pass.
type Queue[T any] struct {
	items []T
	cmp   func(a, b T) int
}

// New creates an empty queue ordered by cmp.
func New[T any](cmp func(a, b T) int) *Queue[T] {
	return &Queue[T]{cmp: cmp}
}

// NewMin creates an empty min-heap over an ordered type.
func NewMin[T cmp.Ordered]() *Queue[T] {
	return New(cmp.Compare[T])
}

// NewMax creates an empty max-heap over an ordered type.
func NewMax[T cmp.Ordered]() *Queue[T] {
	return New(func(a, b T) int { return cmp.Compare(b, a) })
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Peek returns the root item without removing it.
// Returns false if the queue is empty.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Insert adds an item and sifts it up to its place. O(log n).
func (q *Queue[T]) Insert(item T) {
	q.items = append(q.items, item)
	for i := len(q.items) - 1; i > 0; {
		j := (i - 1) / 2
		if q.cmp(item, q.items[j]) >= 0 {
			break
		}
		q.items[i] = q.items[j]
		q.items[j] = item
		i = j
	}
}

// Remove removes and returns the root item: the last item is moved to the
// root then sifted down. O(log n). Returns false if the queue is empty.
func (q *Queue[T]) Remove() (T, bool) {
	var zero T
	n := len(q.items) - 1
	if n < 0 {
		return zero, false
	}
	top := q.items[0]
	last := q.items[n]
	q.items[n] = zero
	q.items = q.items[:n]
	if n == 0 {
		return top, true
	}
	q.items[0] = last
	for i := 0; ; {
		smallest := i
		if l := 2*i + 1; l < n && q.cmp(q.items[l], q.items[smallest]) < 0 {
			smallest = l
		}
		if r := 2*i + 2; r < n && q.cmp(q.items[r], q.items[smallest]) < 0 {
			smallest = r
		}
		if smallest == i {
			break
		}
		q.items[i], q.items[smallest] = q.items[smallest], q.items[i]
		i = smallest
	}
	return top, true
}

// Clear removes all items, keeping the allocated capacity.
func (q *Queue[T]) Clear() {
	clear(q.items)
	q.items = q.items[:0]
}

// Values iterates over a copy of the queue in heap order without modifying
// the queue itself.
func (q *Queue[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		c := &Queue[T]{items: append([]T(nil), q.items...), cmp: q.cmp}
		for c.Len() > 0 {
			v, _ := c.Remove()
			if !yield(v) {
				return
			}
		}
	}
}
