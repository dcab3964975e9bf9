package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/store"
	"github.com/roach88/tempo/internal/trace"
)

func TestTrace_Text(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	id := saveRun(t, fsys, db, "scenarios/tick.yaml")

	out, _, err := execute(t, fsys, "trace", id, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Run: "+id)
	assert.Contains(t, out, "Scenario: tick (passed)")
	assert.Contains(t, out, "Digest: sha256:")
	assert.Contains(t, out, "#1   begin")
	assert.Contains(t, out, `mark "tick"`)
	assert.Contains(t, out, "update idle")
}

func TestTrace_JSONFilteredByKind(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	id := saveRun(t, fsys, db, "scenarios/tick.yaml")

	out, _, err := execute(t, fsys, "trace", id, "--db", db, "--kind", "mark", "--format", "json")
	require.NoError(t, err)

	var result TraceResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, id, resp.RunID)
	assert.Equal(t, "tick", result.Run.Scenario)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, trace.Entry{Seq: 4, Time: 10, Fiber: 1, Kind: trace.KindMark, Detail: "tick"}, result.Entries[0])
}

func TestTrace_RunNotFound(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "trace", "no-such-run", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeRunNotFound+"]")
}

func TestTrace_DigestMismatch(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	id := saveRun(t, fsys, db, "scenarios/tick.yaml")

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE entries SET detail = 'tock' WHERE run_id = ? AND kind = 'mark'`, id)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, fsys, "trace", id, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeDigestMismatch+"]")
}

func TestFilterEntries(t *testing.T) {
	entries := []trace.Entry{
		{Seq: 1, Kind: trace.KindBegin},
		{Seq: 2, Kind: trace.KindOp},
		{Seq: 3, Kind: trace.KindOp},
	}
	assert.Equal(t, entries, filterEntries(entries, ""))
	assert.Len(t, filterEntries(entries, trace.KindOp), 2)
	assert.Equal(t, []trace.Entry{}, filterEntries(entries, trace.KindMark))
}
