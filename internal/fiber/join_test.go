package fiber

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoChildren(d *JoinDelegate) *Fiber {
	return New().
		Spawn(func(p *Fiber) { p.Delay(20).Value("x") }).
		Spawn(func(p *Fiber) { p.Delay(10).Value("y") }).
		Join(d)
}

func TestJoin_All(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(twoChildren(All()))
	step(clk, 15)
	assert.False(t, sf.Ended())
	step(clk, 30)
	assert.True(t, sf.Ended())
	assert.Equal(t, []any{"x", "y"}, sf.Value(), "spawn order")
	assert.Equal(t, 20.0, sf.Now())
}

func TestJoin_Last(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(twoChildren(Last()))
	step(clk, 30)
	assert.Equal(t, []any{"y", "x"}, sf.Value(), "completion order")
}

func TestJoin_Single(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(twoChildren(Single()))
	step(clk, 30)
	assert.Equal(t, "x", sf.Value(), "last child to end")
}

func TestJoin_DefaultIgnoresChildren(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(New().
		Value("parent").
		Spawn(func(p *Fiber) {
			p.Effect(func(*ScheduledFiber, *Scheduler) error { return errors.New("ignored") })
		}).
		Spawn(func(p *Fiber) { p.Value("child") }).
		Join(nil))

	step(clk, 1)
	assert.True(t, sf.Ended())
	assert.NoError(t, sf.Err())
	assert.Equal(t, "parent", sf.Value())
}

func TestJoin_FirstCancelsSubtree(t *testing.T) {
	s, clk := newTestScheduler(t)
	var b, c *ScheduledFiber
	var resumedAt float64
	sf := s.Spawn(New().
		Spawn(func(p *Fiber) { p.Delay(10).Value("a") }).
		Spawn(func(p *Fiber) {
			p.Sync(func(f *ScheduledFiber, s *Scheduler) { b = f }).
				Spawn(func(p *Fiber) {
					p.Sync(func(f *ScheduledFiber, s *Scheduler) { c = f }).Delay(100)
				}).
				Delay(100)
		}).
		Join(First()).
		Sync(func(f *ScheduledFiber, s *Scheduler) {
			resumedAt = s.Now()
			// Losers have unwound by the time the parent resumes.
			assert.True(t, b.Ended())
			assert.True(t, c.Ended())
		}))

	step(clk, 50)
	require.True(t, sf.Ended())
	assert.Equal(t, "a", sf.Value())
	assert.NoError(t, sf.Err())
	assert.Equal(t, 10.0, resumedAt)
	assert.True(t, b.IsCancelled())
	assert.True(t, c.IsCancelled())
	assert.True(t, s.Idle())
}

func TestJoin_Gate(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(New().Value("p").SpawnFiber(New().Delay(10)).SpawnFiber(New().Delay(20)).Join(Gate()))
	step(clk, 15)
	assert.True(t, sf.Ended())
	assert.Equal(t, "p", sf.Value(), "gate keeps the fiber value")
}

func TestJoin_GateFailsWhenEveryChildFails(t *testing.T) {
	s, clk := newTestScheduler(t)
	failAfter := func(dur float64, msg string) *Fiber {
		return New().Delay(dur).Effect(func(*ScheduledFiber, *Scheduler) error { return errors.New(msg) })
	}
	sf := s.Spawn(New().SpawnFiber(failAfter(10, "first")).SpawnFiber(failAfter(20, "second")).Join(Gate()))
	step(clk, 15)
	assert.False(t, sf.Ended())
	step(clk, 25)
	assert.True(t, sf.Ended())
	assert.EqualError(t, sf.Err(), "second")
}

func TestJoin_AllFailsOnFirstError(t *testing.T) {
	s, clk := newTestScheduler(t)
	boom := errors.New("boom")
	var slow *ScheduledFiber
	var endedAt float64
	sf := s.Spawn(New().
		Spawn(func(p *Fiber) {
			p.Delay(10).Effect(func(*ScheduledFiber, *Scheduler) error { return boom })
		}).
		Spawn(func(p *Fiber) {
			p.Sync(func(f *ScheduledFiber, s *Scheduler) { slow = f }).Delay(100)
		}).
		Join(All()).
		Ever(func(p *Fiber) {
			p.Sync(func(f *ScheduledFiber, s *Scheduler) { endedAt = s.Now() })
		}))

	step(clk, 200)
	assert.ErrorIs(t, sf.Err(), boom)
	assert.True(t, slow.IsCancelled())
	assert.Equal(t, 10.0, endedAt)
}

func TestJoin_ReplaysFinishedChildren(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(New().
		Spawn(func(p *Fiber) { p.Value("quick") }).
		Spawn(func(p *Fiber) { p.Value("also quick") }).
		Delay(10).
		Join(All()))

	step(clk, 5)
	assert.False(t, sf.Ended())
	step(clk, 20)
	assert.True(t, sf.Ended())
	assert.Equal(t, []any{"quick", "also quick"}, sf.Value())
}

func TestJoin_FirstIgnoresReplayedError(t *testing.T) {
	boom := errors.New("boom")
	fail := func(p *Fiber) {
		p.Effect(func(*ScheduledFiber, *Scheduler) error { return boom })
	}

	t.Run("both finished before the join", func(t *testing.T) {
		s, clk := newTestScheduler(t)
		sf := s.Spawn(New().
			Spawn(fail).
			Spawn(func(p *Fiber) { p.Value("ok") }).
			Delay(10).
			Join(First()))

		step(clk, 20)
		assert.True(t, sf.Ended())
		assert.NoError(t, sf.Err())
		assert.Equal(t, "ok", sf.Value())
	})

	t.Run("winner still running", func(t *testing.T) {
		s, clk := newTestScheduler(t)
		sf := s.Spawn(New().
			Spawn(fail).
			Spawn(func(p *Fiber) { p.Delay(20).Value("ok") }).
			Delay(10).
			Join(First()))

		step(clk, 15)
		assert.False(t, sf.Ended(), "the replayed error does not end the join")
		step(clk, 30)
		assert.True(t, sf.Ended())
		assert.NoError(t, sf.Err())
		assert.Equal(t, "ok", sf.Value())
	})
}

func TestJoin_GateReplayedFailuresReportLastError(t *testing.T) {
	s, clk := newTestScheduler(t)
	failWith := func(msg string) func(*Fiber) {
		return func(p *Fiber) {
			p.Effect(func(*ScheduledFiber, *Scheduler) error { return errors.New(msg) })
		}
	}
	sf := s.Spawn(New().
		Spawn(failWith("first")).
		Spawn(failWith("second")).
		Delay(10).
		Join(Gate()))

	step(clk, 20)
	assert.True(t, sf.Ended())
	assert.EqualError(t, sf.Err(), "second")
}

func TestJoin_PendingIncludesFinishedChildren(t *testing.T) {
	s, clk := newTestScheduler(t)
	var pending []int
	count := &JoinDelegate{
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			pending = append(pending, len(j.Pending()))
		},
	}
	s.Spawn(New().
		Spawn(func(p *Fiber) { p.Value(1) }).
		Spawn(func(p *Fiber) { p.Value(2) }).
		Spawn(func(p *Fiber) { p.Delay(20) }).
		Delay(10).
		Join(count))

	step(clk, 15, 30)
	assert.Equal(t, []int{2, 1, 0}, pending)
}

func TestJoin_NoChildren(t *testing.T) {
	s, clk := newTestScheduler(t)
	sf := s.Spawn(New().Value(1).Join(All()))
	step(clk, 1)
	assert.True(t, sf.Ended())
	assert.Equal(t, 1, sf.Value())
}

func TestJoin_ChildAttachedDuringJoin(t *testing.T) {
	s, clk := newTestScheduler(t)
	late := New().Delay(30).Value("late")
	sf := s.Spawn(New().
		Spawn(func(p *Fiber) {
			p.Delay(10).Sync(func(f *ScheduledFiber, s *Scheduler) {
				s.AttachFiber(f.Parent(), late)
			}).Value("early")
		}).
		Join(All()))

	step(clk, 20)
	assert.False(t, sf.Ended(), "join waits for the late child")
	step(clk, 50)
	assert.True(t, sf.Ended())
	assert.Equal(t, []any{"early", "late"}, sf.Value())
}

func TestJoin_AttachDuringJoinLeavesValuesToDelegate(t *testing.T) {
	s, clk := newTestScheduler(t)
	late := New().Delay(30).Value("late")
	log := &JoinDelegate{
		FiberWillJoin: func(j *Join, s *Scheduler) { j.Values = []any{"log"} },
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			j.Values = append(j.Values, child.Value())
			if len(j.Pending()) == 0 {
				j.Fiber.SetValue(j.Values)
			}
		},
	}
	sf := s.Spawn(New().
		Spawn(func(p *Fiber) {
			p.Delay(10).Sync(func(f *ScheduledFiber, s *Scheduler) {
				s.AttachFiber(f.Parent(), late)
			}).Value("early")
		}).
		Join(log))

	step(clk, 20, 50)
	assert.True(t, sf.Ended())
	assert.Equal(t, []any{"log", "early", "late"}, sf.Value())
}

func TestJoin_CustomDelegate(t *testing.T) {
	s, clk := newTestScheduler(t)
	var joined []int
	sum := &JoinDelegate{
		FiberWillJoin: func(j *Join, s *Scheduler) { j.Fiber.SetValue(0) },
		ChildFiberDidJoin: func(j *Join, child *ScheduledFiber, s *Scheduler) {
			joined = append(joined, j.Index(child))
			j.Fiber.SetValue(j.Fiber.Value().(int) + child.Value().(int))
		},
	}
	sf := s.Spawn(New().
		Value([]int{30, 10, 20}).
		Map(func(p *Fiber) {
			p.DelayWith(func(f *ScheduledFiber, s *Scheduler) (float64, error) {
				return float64(f.Value().(int)), nil
			})
		}).
		Join(sum))

	step(clk, 100)
	assert.Equal(t, 60, sf.Value())
	assert.Equal(t, []int{1, 2, 0}, joined)
}
