package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/timeval"
)

// Assertion types.
const (
	AssertValue     = "value"
	AssertError     = "error"
	AssertCancelled = "cancelled"
	AssertEnded     = "ended"
	AssertNow       = "now"
	AssertMarks     = "marks"
	AssertRan       = "ran"
)

// AssertionError is returned when an expectation does not hold.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Fiber    string // Fiber name, empty for marks
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s", e.Type)
	if e.Fiber != "" {
		fmt.Fprintf(&buf, " of %s", e.Fiber)
	}
	fmt.Fprintf(&buf, ": expected %s, actual %s", e.Expected, e.Actual)
	return buf.String()
}

// Evaluate checks the expectations and marks of sc against res. All
// failures are returned, in document order, marks last.
func Evaluate(sc *ir.Scenario, res *Result) []error {
	var errs []error
	for _, exp := range sc.Expect {
		errs = append(errs, evaluateExpectation(exp, res)...)
	}
	if sc.Marks != nil {
		if err := assertMarks(sc.Marks, res.Marks); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluateExpectation(exp ir.Expectation, res *Result) []error {
	st, ok := res.Fibers[exp.Fiber]
	if !ok {
		return []error{&AssertionError{Type: AssertRan, Fiber: exp.Fiber, Expected: "a fiber with this name", Actual: "none ran"}}
	}

	var errs []error
	fail := func(typ, expected, actual string) {
		errs = append(errs, &AssertionError{Type: typ, Fiber: exp.Fiber, Expected: expected, Actual: actual})
	}

	if exp.Value != nil && !ir.Equal(exp.Value.V, st.Value) {
		fail(AssertValue, describe(exp.Value.V), describe(st.Value))
	}
	if exp.Error != nil {
		switch {
		case *exp.Error == "" && st.Err != nil:
			fail(AssertError, "no error", fmt.Sprintf("%q", st.Err))
		case *exp.Error != "" && st.Err == nil:
			fail(AssertError, fmt.Sprintf("error containing %q", *exp.Error), "no error")
		case *exp.Error != "" && !strings.Contains(st.Err.Error(), *exp.Error):
			fail(AssertError, fmt.Sprintf("error containing %q", *exp.Error), fmt.Sprintf("%q", st.Err))
		}
	}
	if exp.Cancelled != nil && *exp.Cancelled != st.Cancelled {
		fail(AssertCancelled, fmt.Sprint(*exp.Cancelled), fmt.Sprint(st.Cancelled))
	}
	if exp.Ended != nil && *exp.Ended != st.Ended {
		fail(AssertEnded, fmt.Sprint(*exp.Ended), fmt.Sprint(st.Ended))
	}
	if exp.Now != nil && exp.Now.Float() != st.Now {
		fail(AssertNow, timeval.Format(exp.Now.Float()), timeval.Format(st.Now))
	}
	return errs
}

// assertMarks compares marks in order. Expected times are normalized, so
// "done@1s" matches a mark made at 1000ms.
func assertMarks(expected, actual []string) error {
	want := make([]string, len(expected))
	for i, m := range expected {
		want[i] = normalizeMark(m)
	}
	if slices.Equal(want, actual) {
		return nil
	}
	return &AssertionError{
		Type:     AssertMarks,
		Expected: "[" + strings.Join(want, " ") + "]",
		Actual:   "[" + strings.Join(actual, " ") + "]",
	}
}

func normalizeMark(m string) string {
	label, at, ok := strings.Cut(m, "@")
	if !ok {
		return m
	}
	t, err := timeval.Parse(at)
	if err != nil {
		return m
	}
	return label + "@" + timeval.Format(t)
}

// describe renders a value as canonical JSON when possible.
func describe(v any) string {
	if data, err := ir.MarshalCanonical(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
