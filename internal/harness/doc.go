// Package harness runs scenario documents against the fiber scheduler.
//
// A scenario describes top-level fibers as lists of ops, the clock times at
// which the scheduler is updated, actions applied from outside any fiber,
// and the expected final state. The harness compiles the scenario, drives a
// manual clock through every step, records a trace and checks the
// expectations.
//
// Runs are deterministic: the same scenario always produces the same trace
// and the same digest, whatever the source format (YAML, JSON or CUE) of
// the document. Golden files in testdata/golden pin the trace of selected
// scenarios; regenerate them with
//
//	go test ./internal/harness -update
package harness
