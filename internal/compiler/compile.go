package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tempo/internal/events"
	"github.com/roach88/tempo/internal/fiber"
	"github.com/roach88/tempo/internal/ir"
)

// Hooks receive notifications from compiled programs. Nil hooks are
// skipped.
type Hooks struct {
	// Mark is called by mark ops.
	Mark func(label string, f *fiber.ScheduledFiber, s *fiber.Scheduler)

	// Named is called after a named op registered a fiber.
	Named func(name string, f *fiber.ScheduledFiber)
}

// Compiler turns scenario ops into fiber programs.
type Compiler struct {
	hooks Hooks
}

// New creates a compiler.
func New(hooks Hooks) *Compiler {
	return &Compiler{hooks: hooks}
}

// CompiledFiber is a top-level fiber ready to be scheduled.
type CompiledFiber struct {
	Name    string
	At      float64
	Rate    float64
	Program *fiber.Fiber
}

// ScenarioError carries every validation error of a scenario.
type ScenarioError struct {
	Scenario string
	Errors   []ValidationError
}

func (e *ScenarioError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid scenario %q: %s", e.Scenario, strings.Join(msgs, "; "))
}

// Compile validates sc and compiles its top-level fibers, in document
// order. A *ScenarioError is returned when validation fails.
func (c *Compiler) Compile(sc *ir.Scenario) ([]CompiledFiber, error) {
	if errs := Validate(sc); len(errs) > 0 {
		return nil, &ScenarioError{Scenario: sc.Name, Errors: errs}
	}
	compiled := make([]CompiledFiber, 0, len(sc.Fibers))
	for _, spec := range sc.Fibers {
		program, err := c.Program(spec.Ops)
		if err != nil {
			return nil, fmt.Errorf("fiber %q: %w", spec.Name, err)
		}
		cf := CompiledFiber{Name: spec.Name, Rate: 1, Program: program}
		if spec.At != nil {
			cf.At = spec.At.Float()
		}
		if spec.Rate != nil {
			cf.Rate = *spec.Rate
		}
		compiled = append(compiled, cf)
	}
	return compiled, nil
}

// Program compiles a list of ops.
func (c *Compiler) Program(ops []ir.Op) (*fiber.Fiber, error) {
	p := fiber.New()
	if err := c.build(p, ops); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Compiler) build(p *fiber.Fiber, ops []ir.Op) error {
	for i := range ops {
		if err := c.op(p, &ops[i]); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// nested builds ops into a program body, keeping the first error.
func (c *Compiler) nested(ops []ir.Op, errp *error) func(*fiber.Fiber) {
	return func(b *fiber.Fiber) {
		if err := c.build(b, ops); err != nil && *errp == nil {
			*errp = err
		}
	}
}

func (c *Compiler) op(p *fiber.Fiber, op *ir.Op) error {
	var err error
	switch kind := op.Kind(); kind {
	case ir.OpValue:
		p.Value(op.Value.V)

	case ir.OpFail:
		msg := op.Fail
		p.Effect(func(*fiber.ScheduledFiber, *fiber.Scheduler) error {
			return errors.New(msg)
		})

	case ir.OpMark:
		label := op.Mark
		p.Sync(func(f *fiber.ScheduledFiber, s *fiber.Scheduler) {
			if c.hooks.Mark != nil {
				c.hooks.Mark(label, f, s)
			}
		})

	case ir.OpDelay:
		p.Delay(op.Delay.Float())

	case ir.OpRamp:
		// A callback, even empty, makes progress visible to observers.
		p.Ramp(op.Ramp.Float(), func(float64, *fiber.ScheduledFiber, *fiber.Scheduler) {})

	case ir.OpSpawn:
		p.Spawn(c.nested(op.Spawn, &err))

	case ir.OpSeq:
		var child *fiber.Fiber
		if child, err = c.Program(op.Seq); err == nil {
			p.Seq(child)
		}

	case ir.OpJoin:
		var d *fiber.JoinDelegate
		if d, err = joinDelegate(*op.Join); err == nil {
			p.Join(d)
		}

	case ir.OpRepeat:
		var d *fiber.RepeatDelegate
		if op.Repeat.Times != nil {
			times := *op.Repeat.Times
			d = &fiber.RepeatDelegate{
				RepeatShouldEnd: func(count int, _ *fiber.ScheduledFiber, _ *fiber.Scheduler) bool {
					return count >= times
				},
			}
		}
		p.Repeat(c.nested(op.Repeat.Ops, &err), d)

	case ir.OpEach:
		p.Each(c.nested(op.Each, &err))

	case ir.OpMap:
		p.Map(c.nested(op.Map, &err))

	case ir.OpEver:
		p.Ever(c.nested(op.Ever, &err))

	case ir.OpEither:
		var onValue, onError func(*fiber.Fiber)
		if op.Either.Value != nil {
			onValue = c.nested(op.Either.Value, &err)
		}
		if op.Either.Error != nil {
			onError = c.nested(op.Either.Error, &err)
		}
		p.Either(onValue, onError)

	case ir.OpNamed:
		name := op.Named
		p.Named(name)
		if c.hooks.Named != nil {
			p.Sync(func(f *fiber.ScheduledFiber, _ *fiber.Scheduler) { c.hooks.Named(name, f) })
		}

	case ir.OpStore:
		p.Store(op.Store)

	case ir.OpLoad:
		key := op.Load
		p.Call(func(f *fiber.ScheduledFiber, _ *fiber.Scheduler) (any, error) {
			v, ok := f.Scope().Lookup(key)
			if !ok {
				return nil, fmt.Errorf("no value stored under %q", key)
			}
			return v, nil
		})

	case ir.OpEvent:
		p.Event(op.Event.Source, op.Event.Type, &fiber.EventDelegate{
			EventWasHandled: func(ev events.Event, f *fiber.ScheduledFiber, _ *fiber.Scheduler) error {
				f.SetValue(ev.Payload)
				return nil
			},
		})

	case ir.OpNotify:
		n := *op.Notify
		p.Sync(func(_ *fiber.ScheduledFiber, s *fiber.Scheduler) {
			var payload any
			if n.Payload != nil {
				payload = n.Payload.V
			}
			s.Notify(n.Source, n.Type, payload)
		})

	case ir.OpRate:
		rate := *op.Rate
		p.Sync(func(f *fiber.ScheduledFiber, s *fiber.Scheduler) { s.SetRateForFiber(f, rate) })

	case ir.OpCancel:
		name := op.Cancel
		p.Effect(func(_ *fiber.ScheduledFiber, s *fiber.Scheduler) error {
			target, ok := s.FiberByName(name)
			if !ok {
				return fmt.Errorf("no fiber named %q", name)
			}
			s.CancelFiber(target)
			return nil
		})

	default:
		return &ValidationError{Field: "op", Code: ErrOpKind, Message: fmt.Sprintf("op must have exactly one kind, got %v", op.Kinds())}
	}
	return err
}

// joinDelegate maps a join kind to its delegate. JoinNone and "" mean the
// default join, which ignores child values and errors.
func joinDelegate(kind string) (*fiber.JoinDelegate, error) {
	switch kind {
	case "", ir.JoinNone:
		return nil, nil
	case ir.JoinAll:
		return fiber.All(), nil
	case ir.JoinLast:
		return fiber.Last(), nil
	case ir.JoinFirst:
		return fiber.First(), nil
	case ir.JoinGate:
		return fiber.Gate(), nil
	case ir.JoinSingle:
		return fiber.Single(), nil
	}
	return nil, &ValidationError{Field: "join", Code: ErrInvalidJoin, Message: fmt.Sprintf("unknown join %q", kind)}
}
