package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/trace"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a passed run with a consistent digest.
func createTestRun(id, scenarioHash string) trace.Run {
	entries := []trace.Entry{
		{Seq: 1, Time: 0, Fiber: 1, Kind: trace.KindBegin},
		{Seq: 2, Time: 0, Fiber: 1, Kind: trace.KindOp, IP: 0, Detail: "ramp"},
		{Seq: 3, Time: 5, Fiber: 1, Kind: trace.KindProgress, Progress: 0.5},
		{Seq: 4, Time: 10, Fiber: 1, Kind: trace.KindEnd},
		{Seq: 5, Time: 20, Kind: trace.KindUpdate, Detail: "idle"},
	}
	digest, err := trace.Digest(entries)
	if err != nil {
		panic(err)
	}
	return trace.Run{
		ID:            id,
		Scenario:      "ramp",
		ScenarioHash:  scenarioHash,
		Digest:        digest,
		FinalTime:     20,
		Status:        trace.StatusPassed,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Entries:       entries,
	}
}
