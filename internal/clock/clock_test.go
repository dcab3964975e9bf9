package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/testutil"
)

type tick struct {
	begin, end float64
}

type recorder struct {
	ticks []tick
	onTick func(begin, end float64)
}

func (r *recorder) Update(begin, end float64) {
	r.ticks = append(r.ticks, tick{begin, end})
	if r.onTick != nil {
		r.onTick(begin, end)
	}
}

func TestManual_SetNowTicks(t *testing.T) {
	c := NewManual()
	r := &recorder{}
	c.Attach(r)

	c.SetNow(100)
	c.SetNow(100)
	c.SetNow(50)
	c.Step(25)

	assert.Equal(t, []tick{{0, 100}, {100, 125}}, r.ticks, "only forward moves tick")
	assert.Equal(t, 125.0, c.Now())
}

func TestManual_NewManualAt(t *testing.T) {
	c := NewManualAt(42)
	assert.Equal(t, 42.0, c.Now())
}

func TestManual_AdvanceRequested(t *testing.T) {
	c := NewManual()
	r := &recorder{}
	r.onTick = func(begin, end float64) {
		if end < 300 {
			c.Advance()
		}
	}
	c.Attach(r)

	assert.False(t, c.Requested())
	c.Advance()
	assert.True(t, c.Requested())

	c.SetNow(100)
	assert.True(t, c.Requested(), "target asked again during the tick")
	c.SetNow(300)
	assert.False(t, c.Requested())
}

func TestManual_PostRunsBeforeTick(t *testing.T) {
	c := NewManual()
	var order []string
	r := &recorder{onTick: func(begin, end float64) { order = append(order, "tick") }}
	c.Attach(r)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Post(func() { order = append(order, "post") })
	}()
	<-done

	c.SetNow(10)
	assert.Equal(t, []string{"post", "tick"}, order)
}

func TestManual_Flush(t *testing.T) {
	c := NewManual()
	n := 0
	c.Post(func() {
		n++
		c.Post(func() { n++ })
	})
	assert.Equal(t, 2, c.Flush(), "posts made while draining are run too")
	assert.Equal(t, 2, n)
}

func TestManual_Stop(t *testing.T) {
	c := NewManual()
	c.SetNow(10)
	c.Advance()
	c.Stop()
	assert.Equal(t, 0.0, c.Now())
	assert.False(t, c.Requested())
}

func TestRealtime_TickOnlyWhenRequested(t *testing.T) {
	ft := testutil.NewWallClock(time.Unix(1000, 0))
	c := NewRealtime(WithNowFunc(ft.Now))
	r := &recorder{}
	c.Attach(r)

	c.Tick()
	assert.Empty(t, r.ticks, "stopped clock does not tick")

	c.Start()
	assert.True(t, c.Playing())
	ft.Advance(20 * time.Millisecond)
	c.Tick()
	require.Len(t, r.ticks, 1)
	assert.Equal(t, tick{0, 20}, r.ticks[0])

	ft.Advance(20 * time.Millisecond)
	c.Tick()
	assert.Len(t, r.ticks, 1, "no advance requested")

	c.Advance()
	c.Tick()
	require.Len(t, r.ticks, 2)
	assert.Equal(t, tick{20, 40}, r.ticks[1])
}

func TestRealtime_PauseResume(t *testing.T) {
	ft := testutil.NewWallClock(time.Unix(0, 0))
	c := NewRealtime(WithNowFunc(ft.Now))
	r := &recorder{}
	c.Attach(r)

	c.Start()
	ft.Advance(10 * time.Millisecond)
	c.Pause()
	assert.True(t, c.Paused())
	ft.Advance(1000 * time.Millisecond)
	assert.Equal(t, 10.0, c.Now(), "paused time does not count")

	c.Advance()
	c.Tick()
	assert.Empty(t, r.ticks, "paused clock does not tick")

	c.Resume()
	ft.Advance(5 * time.Millisecond)
	assert.Equal(t, 15.0, c.Now())
	c.Tick()
	require.Len(t, r.ticks, 1)
	assert.Equal(t, tick{0, 15}, r.ticks[0])

	c.Stop()
	assert.Equal(t, 0.0, c.Now())
}

func TestRealtime_RunDeliversPostsAndTicks(t *testing.T) {
	c := NewRealtime(WithFrameInterval(time.Millisecond))
	ticked := make(chan struct{}, 1)
	var once sync.Once
	r := &recorder{onTick: func(begin, end float64) {
		once.Do(func() { close(ticked) })
	}}
	c.Attach(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	posted := make(chan struct{})
	require.True(t, c.Post(func() { close(posted) }))
	c.Start()

	select {
	case <-posted:
	case <-time.After(2 * time.Second):
		t.Fatal("post was not run")
	}
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not tick")
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, c.Post(func() {}), "mailbox is closed after Run returns")
}

func TestRealtime_RunOnlyOnce(t *testing.T) {
	c := NewRealtime(WithFrameInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Run(ctx), context.Canceled)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRunOnce)
	case <-time.After(2 * time.Second):
		t.Fatal("second Run did not return")
	}
}
