package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/ir"
)

func ptr[T any](v T) *T { return &v }

func stateResult(states ...*FiberState) *Result {
	res := &Result{Fibers: make(map[string]*FiberState), Marks: []string{}}
	for _, st := range states {
		res.Fibers[st.Name] = st
	}
	return res
}

func assertionTypes(t *testing.T, errs []error) []string {
	t.Helper()
	types := make([]string, 0, len(errs))
	for _, err := range errs {
		var ae *AssertionError
		require.ErrorAs(t, err, &ae)
		types = append(types, ae.Type)
	}
	return types
}

func TestEvaluate_AllHold(t *testing.T) {
	sc := &ir.Scenario{
		Expect: []ir.Expectation{{
			Fiber:     "main",
			Value:     ir.L(map[string]any{"n": 1}),
			Error:     ptr(""),
			Cancelled: ptr(false),
			Ended:     ptr(true),
			Now:       ptr(ir.Time(10)),
		}},
		Marks: []string{"a@0", "b@1s"},
	}
	res := stateResult(&FiberState{Name: "main", Value: map[string]any{"n": 1}, Ended: true, Now: 10})
	res.Marks = []string{"a@0ms", "b@1000ms"}

	assert.Empty(t, Evaluate(sc, res))
}

func TestEvaluate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		exp    ir.Expectation
		state  FiberState
		want   string
		detail string
	}{
		{
			name:   "value",
			exp:    ir.Expectation{Value: ir.L("fast")},
			state:  FiberState{Value: "slow"},
			want:   AssertValue,
			detail: `expected "fast", actual "slow"`,
		},
		{
			name:   "value null",
			exp:    ir.Expectation{Value: ir.L(nil)},
			state:  FiberState{Value: 0},
			want:   AssertValue,
			detail: "expected null, actual 0",
		},
		{
			name:   "unexpected error",
			exp:    ir.Expectation{Error: ptr("")},
			state:  FiberState{Err: errors.New("boom")},
			want:   AssertError,
			detail: `expected no error, actual "boom"`,
		},
		{
			name:   "missing error",
			exp:    ir.Expectation{Error: ptr("boom")},
			want:   AssertError,
			detail: `expected error containing "boom", actual no error`,
		},
		{
			name:   "other error",
			exp:    ir.Expectation{Error: ptr("boom")},
			state:  FiberState{Err: errors.New("cancelled")},
			want:   AssertError,
			detail: `actual "cancelled"`,
		},
		{
			name:   "cancelled",
			exp:    ir.Expectation{Cancelled: ptr(true)},
			want:   AssertCancelled,
			detail: "expected true, actual false",
		},
		{
			name:   "ended",
			exp:    ir.Expectation{Ended: ptr(true)},
			want:   AssertEnded,
			detail: "expected true, actual false",
		},
		{
			name:   "now",
			exp:    ir.Expectation{Now: ptr(ir.Time(1000))},
			state:  FiberState{Now: 999},
			want:   AssertNow,
			detail: "expected 1000ms, actual 999ms",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.exp.Fiber = "main"
			tt.state.Name = "main"
			errs := Evaluate(&ir.Scenario{Expect: []ir.Expectation{tt.exp}}, stateResult(&tt.state))
			require.Len(t, errs, 1)
			assert.Equal(t, []string{tt.want}, assertionTypes(t, errs))
			assert.Contains(t, errs[0].Error(), "of main")
			assert.Contains(t, errs[0].Error(), tt.detail)
		})
	}
}

func TestEvaluate_ErrorSubstring(t *testing.T) {
	sc := &ir.Scenario{Expect: []ir.Expectation{{Fiber: "main", Error: ptr("boom")}}}
	res := stateResult(&FiberState{Name: "main", Err: errors.New("fail: boom at 10ms")})
	assert.Empty(t, Evaluate(sc, res))
}

func TestEvaluate_UnknownFiber(t *testing.T) {
	sc := &ir.Scenario{Expect: []ir.Expectation{{Fiber: "ghost", Ended: ptr(true)}}}
	errs := Evaluate(sc, stateResult())
	assert.Equal(t, []string{AssertRan}, assertionTypes(t, errs))
}

func TestEvaluate_CollectsEveryFailure(t *testing.T) {
	sc := &ir.Scenario{
		Expect: []ir.Expectation{
			{Fiber: "a", Value: ir.L(1), Ended: ptr(true)},
			{Fiber: "b", Cancelled: ptr(true)},
		},
		Marks: []string{"x@10"},
	}
	res := stateResult(&FiberState{Name: "a", Value: 2}, &FiberState{Name: "b"})

	errs := Evaluate(sc, res)
	assert.Equal(t, []string{AssertValue, AssertEnded, AssertCancelled, AssertMarks}, assertionTypes(t, errs))
}

func TestEvaluate_Marks(t *testing.T) {
	tests := []struct {
		name     string
		expected []string
		actual   []string
		ok       bool
	}{
		{"equal", []string{"a@10ms"}, []string{"a@10ms"}, true},
		{"normalized", []string{"a@0.5s", "b@10"}, []string{"a@500ms", "b@10ms"}, true},
		{"order matters", []string{"a@0", "b@0"}, []string{"b@0ms", "a@0ms"}, false},
		{"missing", []string{"a@0"}, []string{}, false},
		{"extra", []string{}, []string{"a@0ms"}, false},
		{"unparsed time kept", []string{"a@later"}, []string{"a@later"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := stateResult()
			res.Marks = tt.actual
			errs := Evaluate(&ir.Scenario{Marks: tt.expected}, res)
			if tt.ok {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, []string{AssertMarks}, assertionTypes(t, errs))
		})
	}
}

func TestEvaluate_NoMarksExpectation(t *testing.T) {
	res := stateResult()
	res.Marks = []string{"a@0ms"}
	assert.Empty(t, Evaluate(&ir.Scenario{}, res))
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{Type: AssertMarks, Expected: "[a@0ms]", Actual: "[]"}
	assert.Equal(t, "assertion failed: marks: expected [a@0ms], actual []", err.Error())

	err = &AssertionError{Type: AssertEnded, Fiber: "main", Expected: "true", Actual: "false"}
	assert.Equal(t, "assertion failed: ended of main: expected true, actual false", err.Error())
}
