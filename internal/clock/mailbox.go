package clock

import "sync"

// mailbox is a thread-safe FIFO of functions posted from other goroutines to
// be run on the goroutine that drives the clock.
//
// The mailbox is unbounded so that posting never blocks the poster (async
// completions may arrive in bursts).
//
// The signal channel has a buffer of 1 and coalesces multiple posts; the
// clock loop waits on it and then drains everything.
type mailbox struct {
	mu     sync.Mutex
	posts  []func()
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		posts:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Post appends fn. Returns false if the mailbox is closed.
// Thread-safe: may be called from any goroutine.
func (m *mailbox) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.posts = append(m.posts, fn)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything posted so far, in order.
func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.posts) == 0 {
		return nil
	}
	posts := m.posts
	m.posts = make([]func(), 0, cap(posts))
	return posts
}

// Drain runs every posted function on the calling goroutine, including
// functions posted while draining. Returns the number of functions run.
func (m *mailbox) Drain() int {
	n := 0
	for {
		posts := m.take()
		if len(posts) == 0 {
			return n
		}
		for _, fn := range posts {
			fn()
		}
		n += len(posts)
	}
}

// Wait returns a channel that signals when posts may be available.
func (m *mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of pending posts.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// Close rejects further posts. Pending posts can still be drained.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
