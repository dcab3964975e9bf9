package compiler

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/tempo/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Scenario errors (E100-E109)
	ErrScenarioNameEmpty = "E100" // name is required
	ErrNoFibers          = "E101" // at least one fiber required
	ErrFiberNameEmpty    = "E102" // fiber name is required
	ErrDuplicateName     = "E103" // duplicate fiber name
	ErrNoSteps           = "E104" // steps or until required
	ErrInvalidTime       = "E105" // time is negative, infinite or out of order

	// Op errors (E110-E119)
	ErrOpKind        = "E110" // op must have exactly one kind
	ErrInvalidJoin   = "E111" // unknown join kind
	ErrInvalidRepeat = "E112" // negative repeat count
	ErrInvalidEvent  = "E113" // event source or type missing
	ErrInvalidRate   = "E114" // NaN rate

	// Action and expectation errors (E120-E129)
	ErrActionKind     = "E120" // action must have exactly one kind
	ErrUnknownFiber   = "E121" // reference to an undeclared fiber
	ErrInvalidPattern = "E122" // malformed mark
)

// ValidationError represents a scenario validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

type validator struct {
	errs  []ValidationError
	names []string // top-level fibers
	named []string // named ops
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a scenario. Returns all errors found (does not
// fail-fast).
func Validate(sc *ir.Scenario) []ValidationError {
	v := &validator{}

	if strings.TrimSpace(sc.Name) == "" {
		v.add("name", ErrScenarioNameEmpty, "name is required and must be non-empty")
	}
	if len(sc.Fibers) == 0 {
		v.add("fibers", ErrNoFibers, "at least one fiber is required")
	}

	for i, f := range sc.Fibers {
		field := fmt.Sprintf("fibers[%d]", i)
		switch {
		case strings.TrimSpace(f.Name) == "":
			v.add(field+".name", ErrFiberNameEmpty, "fiber name is required")
		case slices.Contains(v.names, f.Name):
			v.add(field+".name", ErrDuplicateName, "duplicate fiber name %q", f.Name)
		default:
			v.names = append(v.names, f.Name)
		}
		if f.At != nil && (f.At.Float() < 0 || math.IsNaN(f.At.Float())) {
			v.add(field+".at", ErrInvalidTime, "begin time must be >= 0, got %v", f.At.Float())
		}
		if f.Rate != nil && math.IsNaN(*f.Rate) {
			v.add(field+".rate", ErrInvalidRate, "rate is NaN")
		}
		v.ops(field+".ops", f.Ops)
	}

	v.times(sc)

	for i, a := range sc.Actions {
		v.action(fmt.Sprintf("actions[%d]", i), a)
	}
	for i, e := range sc.Expect {
		v.fiberRef(fmt.Sprintf("expect[%d].fiber", i), e.Fiber)
	}
	for i, m := range sc.Marks {
		if label, at, ok := strings.Cut(m, "@"); !ok || label == "" || at == "" {
			v.add(fmt.Sprintf("marks[%d]", i), ErrInvalidPattern, "mark must be written label@time, got %q", m)
		}
	}
	return v.errs
}

func (v *validator) times(sc *ir.Scenario) {
	if len(sc.Steps) == 0 && sc.Until == nil {
		v.add("steps", ErrNoSteps, "steps or until is required")
	}
	prev := 0.0
	for i, t := range sc.Steps {
		if !finite(t) || t.Float() <= prev {
			v.add(fmt.Sprintf("steps[%d]", i), ErrInvalidTime, "steps must be finite and increasing, got %s", t)
		} else {
			prev = t.Float()
		}
	}
	if sc.Until != nil && (!finite(*sc.Until) || sc.Until.Float() <= 0) {
		v.add("until", ErrInvalidTime, "until must be finite and > 0, got %s", *sc.Until)
	}
	if sc.Step != nil {
		if sc.Until == nil {
			v.add("step", ErrNoSteps, "step requires until")
		}
		if !finite(*sc.Step) || sc.Step.Float() <= 0 {
			v.add("step", ErrInvalidTime, "step must be finite and > 0, got %s", *sc.Step)
		}
	}
}

func (v *validator) ops(field string, ops []ir.Op) {
	for i := range ops {
		v.op(fmt.Sprintf("%s[%d]", field, i), &ops[i])
	}
}

func (v *validator) op(field string, op *ir.Op) {
	kinds := op.Kinds()
	if len(kinds) != 1 {
		if len(kinds) == 0 {
			v.add(field, ErrOpKind, "op has no kind")
		} else {
			v.add(field, ErrOpKind, "op has several kinds: %s", strings.Join(kinds, ", "))
		}
		return
	}

	switch kinds[0] {
	case ir.OpDelay:
		if math.IsNaN(op.Delay.Float()) {
			v.add(field+".delay", ErrInvalidTime, "duration is NaN")
		}
	case ir.OpRamp:
		if math.IsNaN(op.Ramp.Float()) {
			v.add(field+".ramp", ErrInvalidTime, "duration is NaN")
		}
	case ir.OpSpawn:
		v.ops(field+".spawn", op.Spawn)
	case ir.OpSeq:
		v.ops(field+".seq", op.Seq)
	case ir.OpEach:
		v.ops(field+".each", op.Each)
	case ir.OpMap:
		v.ops(field+".map", op.Map)
	case ir.OpEver:
		v.ops(field+".ever", op.Ever)
	case ir.OpJoin:
		if *op.Join != "" && !slices.Contains(ir.JoinKinds, *op.Join) {
			v.add(field+".join", ErrInvalidJoin, "unknown join %q (want one of %s)", *op.Join, strings.Join(ir.JoinKinds, ", "))
		}
	case ir.OpRepeat:
		if t := op.Repeat.Times; t != nil && *t < 0 {
			v.add(field+".repeat.times", ErrInvalidRepeat, "times must be >= 0, got %d", *t)
		}
		v.ops(field+".repeat.ops", op.Repeat.Ops)
	case ir.OpEither:
		v.ops(field+".either.value", op.Either.Value)
		v.ops(field+".either.error", op.Either.Error)
	case ir.OpEvent:
		if op.Event.Source == "" || op.Event.Type == "" {
			v.add(field+".event", ErrInvalidEvent, "event needs a source and a type")
		}
	case ir.OpNotify:
		if op.Notify.Source == "" || op.Notify.Type == "" {
			v.add(field+".notify", ErrInvalidEvent, "notify needs a source and a type")
		}
	case ir.OpNamed:
		v.named = append(v.named, op.Named)
	case ir.OpRate:
		if math.IsNaN(*op.Rate) {
			v.add(field+".rate", ErrInvalidRate, "rate is NaN")
		}
	}
}

func (v *validator) action(field string, a ir.Action) {
	if !finite(a.At) || a.At.Float() < 0 {
		v.add(field+".at", ErrInvalidTime, "action time must be finite and >= 0, got %s", a.At)
	}
	n := 0
	if a.Notify != nil {
		n++
		if a.Notify.Source == "" || a.Notify.Type == "" {
			v.add(field+".notify", ErrInvalidEvent, "notify needs a source and a type")
		}
	}
	if a.Cancel != "" {
		n++
		v.fiberRef(field+".cancel", a.Cancel)
	}
	if a.Rate != nil {
		n++
		v.fiberRef(field+".rate.fiber", a.Rate.Fiber)
		if math.IsNaN(a.Rate.Rate) {
			v.add(field+".rate.rate", ErrInvalidRate, "rate is NaN")
		}
	}
	if n != 1 {
		v.add(field, ErrActionKind, "action must have exactly one of notify, cancel, rate")
	}
}

// fiberRef checks a reference to a top-level fiber or to a name
// registered by a named op.
func (v *validator) fiberRef(field, name string) {
	if name == "" {
		v.add(field, ErrUnknownFiber, "fiber name is required")
		return
	}
	if !slices.Contains(v.names, name) && !slices.Contains(v.named, name) {
		v.add(field, ErrUnknownFiber, "no fiber named %q", name)
	}
}

func finite(t ir.Time) bool {
	f := t.Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
