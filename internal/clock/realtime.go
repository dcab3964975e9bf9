package clock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRunOnce is returned by Run when the clock already ran.
var ErrRunOnce = errors.New("clock: Run called twice")

// DefaultFrameInterval is the default tick period of a realtime clock.
const DefaultFrameInterval = 16 * time.Millisecond

type state int

const (
	stopped state = iota
	playing
	paused
)

// Realtime is a clock driven by wall-clock time, ticking at most once per
// frame while playing and while its target requested an advance.
//
// Run must be called from exactly ONE goroutine: that goroutine delivers all
// ticks and runs all posted functions, so the target is never touched
// concurrently. All other methods are safe from any goroutine.
type Realtime struct {
	mu        sync.Mutex
	target    Target
	state     state
	startTime time.Time
	pausedAt  time.Time
	lastTick  float64
	requested bool
	ran       bool

	frame   time.Duration
	nowFunc func() time.Time
	mailbox *mailbox
	logger  *slog.Logger
}

// RealtimeOption configures a realtime clock.
type RealtimeOption func(*Realtime)

// WithFrameInterval sets the tick period.
func WithFrameInterval(d time.Duration) RealtimeOption {
	return func(c *Realtime) {
		c.frame = d
	}
}

// WithNowFunc overrides the wall-clock source (for tests).
func WithNowFunc(now func() time.Time) RealtimeOption {
	return func(c *Realtime) {
		c.nowFunc = now
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) RealtimeOption {
	return func(c *Realtime) {
		c.logger = logger
	}
}

// NewRealtime creates a stopped realtime clock.
func NewRealtime(opts ...RealtimeOption) *Realtime {
	c := &Realtime{
		frame:   DefaultFrameInterval,
		nowFunc: time.Now,
		mailbox: newMailbox(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach sets the target that receives ticks.
func (c *Realtime) Attach(target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
}

// Now returns the milliseconds elapsed since Start, excluding paused time.
// A stopped clock is at 0.
func (c *Realtime) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Realtime) nowLocked() float64 {
	switch c.state {
	case playing:
		return ms(c.nowFunc().Sub(c.startTime))
	case paused:
		return ms(c.pausedAt.Sub(c.startTime))
	}
	return 0
}

// Playing reports whether the clock is running.
func (c *Realtime) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == playing
}

// Paused reports whether the clock is paused.
func (c *Realtime) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == paused
}

// Advance requests a tick at the next frame.
func (c *Realtime) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == playing {
		c.requested = true
	}
}

// Start starts a stopped clock and requests a tick.
func (c *Realtime) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stopped {
		return
	}
	c.state = playing
	c.startTime = c.nowFunc()
	c.lastTick = 0
	c.requested = true
	c.logger.Debug("clock started")
}

// Stop stops the clock without a tick and resets its time to 0.
func (c *Realtime) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stopped
	c.requested = false
	c.lastTick = 0
	c.logger.Debug("clock stopped")
}

// Pause freezes the clock without a tick.
func (c *Realtime) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != playing {
		return
	}
	c.state = paused
	c.pausedAt = c.nowFunc()
}

// Resume unfreezes a paused clock; paused time does not count. A stopped
// clock is started.
func (c *Realtime) Resume() {
	c.mu.Lock()
	switch c.state {
	case stopped:
		c.mu.Unlock()
		c.Start()
		return
	case paused:
		c.startTime = c.startTime.Add(c.nowFunc().Sub(c.pausedAt))
		c.state = playing
		c.requested = true
	}
	c.mu.Unlock()
}

// Post queues fn to run on the Run goroutine.
func (c *Realtime) Post(fn func()) bool {
	return c.mailbox.Post(fn)
}

// Run delivers ticks and posted functions until ctx is done. It may be
// called once per clock: the mailbox is closed when it returns, and a
// second call returns ErrRunOnce.
func (c *Realtime) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return ErrRunOnce
	}
	c.ran = true
	c.mu.Unlock()

	ticker := time.NewTicker(c.frame)
	defer ticker.Stop()
	defer c.mailbox.Close()

	for {
		select {
		case <-ctx.Done():
			c.mailbox.Drain()
			return ctx.Err()
		case <-c.mailbox.Wait():
			c.mailbox.Drain()
		case <-ticker.C:
			c.mailbox.Drain()
			c.Tick()
		}
	}
}

// Tick delivers a tick covering the time since the previous one, if the
// clock is playing and a tick was requested. Run calls it once per frame.
func (c *Realtime) Tick() {
	c.mu.Lock()
	if c.state != playing || !c.requested || c.target == nil {
		c.mu.Unlock()
		return
	}
	begin := c.lastTick
	end := c.nowLocked()
	if end <= begin {
		c.mu.Unlock()
		return
	}
	c.requested = false
	c.lastTick = end
	target := c.target
	c.mu.Unlock()

	target.Update(begin, end)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
