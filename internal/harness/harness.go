package harness

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/tempo/internal/clock"
	"github.com/roach88/tempo/internal/compiler"
	"github.com/roach88/tempo/internal/fiber"
	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/timeval"
	"github.com/roach88/tempo/internal/trace"
)

// Option configures a run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	observers []fiber.Observer
	until     float64
	step      float64
}

// WithLogger sets the scheduler logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithObserver adds a scheduler observer next to the trace recorder.
func WithObserver(o fiber.Observer) Option {
	return func(c *config) { c.observers = append(c.observers, o) }
}

// WithUntil overrides the until and step of the scenario. A step of 0
// means a single update.
func WithUntil(until, step float64) Option {
	return func(c *config) { c.until, c.step = until, step }
}

// FiberState is the final state of a named fiber.
type FiberState struct {
	Name      string
	ID        int
	Value     any
	Err       error
	Cancelled bool
	Ended     bool
	Now       float64
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario     string
	ScenarioHash string

	// Pass is true when every expectation holds.
	Pass bool

	// Errors holds the failed expectations.
	Errors []error

	Entries   []trace.Entry
	Digest    string
	FinalTime float64

	// Marks are the marks made by fibers, as "label@time".
	Marks []string

	// Fibers holds the final state of top-level fibers and of fibers named
	// by a named op, by name.
	Fibers map[string]*FiberState
}

// TraceRun converts the result into a run record with the given ID.
func (r *Result) TraceRun(id string) trace.Run {
	status := trace.StatusPassed
	if !r.Pass {
		status = trace.StatusFailed
	}
	return trace.Run{
		ID:            id,
		Scenario:      r.Scenario,
		ScenarioHash:  r.ScenarioHash,
		Digest:        r.Digest,
		FinalTime:     r.FinalTime,
		Status:        status,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Entries:       r.Entries,
	}
}

// runner holds the state of one run.
type runner struct {
	sc      *ir.Scenario
	logger  *slog.Logger
	clock   *clock.Manual
	sched   *fiber.Scheduler
	rec     *trace.Recorder
	tracked map[string]*fiber.ScheduledFiber
	marks   []string
}

// Run executes a scenario on a manual clock and checks its expectations.
//
// Execution flow:
//  1. Validate and compile the scenario
//  2. Schedule the top-level fibers, named and with their initial rate
//  3. Step the clock through the timeline; after the update that ends at
//     t, apply the actions at t
//  4. Snapshot the named fibers and evaluate the expectations
//
// An error is returned when the scenario is invalid or cannot be set up;
// failed expectations are reported in the result.
func Run(sc *ir.Scenario, opts ...Option) (*Result, error) {
	cfg := &config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		until:  math.NaN(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hash, err := ir.ScenarioHash(sc)
	if err != nil {
		return nil, err
	}

	r := &runner{
		sc:      sc,
		logger:  cfg.logger,
		clock:   clock.NewManual(),
		rec:     trace.NewRecorder(trace.WithUpdates()),
		tracked: make(map[string]*fiber.ScheduledFiber),
	}
	schedOpts := []fiber.Option{
		fiber.WithClock(r.clock),
		fiber.WithLogger(cfg.logger),
		fiber.WithObserver(r.rec),
	}
	for _, o := range cfg.observers {
		schedOpts = append(schedOpts, fiber.WithObserver(o))
	}
	if sc.MaxRuns > 0 {
		schedOpts = append(schedOpts, fiber.WithMaxRunsPerInstant(sc.MaxRuns))
	}
	r.sched = fiber.NewScheduler(schedOpts...)
	r.rec.Bind(r.sched)

	c := compiler.New(compiler.Hooks{
		Mark: func(label string, f *fiber.ScheduledFiber, s *fiber.Scheduler) {
			r.rec.Mark(label, f)
			r.marks = append(r.marks, label+"@"+timeval.Format(s.Now()))
		},
		Named: func(name string, f *fiber.ScheduledFiber) {
			r.tracked[name] = f
		},
	})
	compiled, err := c.Compile(sc)
	if err != nil {
		return nil, err
	}

	for _, cf := range compiled {
		sf, err := r.sched.ScheduleFiber(cf.Program, cf.At)
		if err != nil {
			return nil, fmt.Errorf("schedule fiber %q: %w", cf.Name, err)
		}
		if err := r.sched.SetNameForFiber(sf, cf.Name); err != nil {
			return nil, fmt.Errorf("name fiber %q: %w", cf.Name, err)
		}
		if cf.Rate != 1 {
			r.sched.SetRateForFiber(sf, cf.Rate)
		}
		r.tracked[cf.Name] = sf
	}

	timeline := Timeline(sc, cfg.until, cfg.step)
	r.logger.Debug("running scenario", "scenario", sc.Name, "fibers", len(compiled), "steps", len(timeline))
	for _, t := range timeline {
		r.clock.SetNow(t)
		for _, a := range sc.Actions {
			if a.At.Float() == t {
				r.apply(a)
			}
		}
	}

	digest, err := r.rec.Digest()
	if err != nil {
		return nil, fmt.Errorf("trace digest: %w", err)
	}
	res := &Result{
		Scenario:     sc.Name,
		ScenarioHash: hash,
		Entries:      r.rec.Entries(),
		Digest:       digest,
		FinalTime:    r.clock.Now(),
		Marks:        r.marks,
		Fibers:       make(map[string]*FiberState, len(r.tracked)),
	}
	if res.Marks == nil {
		res.Marks = []string{}
	}
	for name, sf := range r.tracked {
		res.Fibers[name] = &FiberState{
			Name:      name,
			ID:        sf.ID(),
			Value:     sf.Value(),
			Err:       sf.Err(),
			Cancelled: sf.IsCancelled(),
			Ended:     sf.Ended(),
			Now:       sf.Now(),
		}
	}
	res.Errors = Evaluate(sc, res)
	res.Pass = len(res.Errors) == 0
	return res, nil
}

// apply applies an action between two updates.
func (r *runner) apply(a ir.Action) {
	switch {
	case a.Notify != nil:
		var payload any
		if a.Notify.Payload != nil {
			payload = a.Notify.Payload.V
		}
		r.sched.Notify(a.Notify.Source, a.Notify.Type, payload)
	case a.Cancel != "":
		if sf := r.lookup(a.Cancel); sf != nil {
			r.sched.CancelFiber(sf)
		}
	case a.Rate != nil:
		if sf := r.lookup(a.Rate.Fiber); sf != nil {
			r.sched.SetRateForFiber(sf, a.Rate.Rate)
		}
	}
}

// lookup finds the live fiber registered under name, falling back to the
// last fiber known under that name. It returns nil when that fiber ended.
func (r *runner) lookup(name string) *fiber.ScheduledFiber {
	if sf, ok := r.sched.FiberByName(name); ok {
		return sf
	}
	sf := r.tracked[name]
	if sf == nil || sf.Ended() {
		r.logger.Debug("action target is not running", "fiber", name)
		return nil
	}
	return sf
}

// Timeline returns the increasing clock times of a scenario: its steps, the
// times of its actions and the frames of until. until and step override
// the scenario when until is not NaN.
func Timeline(sc *ir.Scenario, until, step float64) []float64 {
	var times []float64
	for _, t := range sc.Steps {
		times = append(times, t.Float())
	}
	for _, a := range sc.Actions {
		times = append(times, a.At.Float())
	}

	if math.IsNaN(until) && sc.Until != nil {
		until = sc.Until.Float()
		step = 0
		if sc.Step != nil {
			step = sc.Step.Float()
		}
	}
	if !math.IsNaN(until) && until > 0 && !math.IsInf(until, 0) {
		if step <= 0 || math.IsNaN(step) {
			step = until
		}
		for k := 1; ; k++ {
			t := float64(k) * step
			if t >= until {
				times = append(times, until)
				break
			}
			times = append(times, t)
		}
	}

	slices.Sort(times)
	return slices.Compact(times)
}
