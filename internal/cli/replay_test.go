package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/store"
)

func TestReplay_Deterministic(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	first := saveRun(t, fsys, db, "scenarios/tick.yaml")
	second := saveRun(t, fsys, db, "scenarios/tick.yaml")
	saveRun(t, fsys, db, "scenarios/wrong.yaml")

	out, _, err := execute(t, fsys, "replay", "scenarios/tick.yaml", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: tick")
	assert.Contains(t, out, "✓ "+first)
	assert.Contains(t, out, "✓ "+second)
}

func TestReplay_AcrossFormats(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	id := saveRun(t, fsys, db, "scenarios/tick.yaml")

	out, _, err := execute(t, fsys, "replay", "other/tick.json", "--db", db, "--format", "json")
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllDeterministic)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, id, result.Runs[0].RunID)
	assert.Equal(t, result.Digest, result.Runs[0].Digest)
}

func TestReplay_NoRuns(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "replay", "scenarios/tick.yaml", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No stored runs for scenario tick.")
}

func TestReplay_DifferentTrace(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	id := saveRun(t, fsys, db, "scenarios/tick.yaml")

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE runs SET digest = 'sha256:other' WHERE id = ?`, id)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, fsys, "replay", "scenarios/tick.yaml", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+id)
}

func TestReplay_SpecificRun(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	tick := saveRun(t, fsys, db, "scenarios/tick.yaml")
	wrong := saveRun(t, fsys, db, "scenarios/wrong.yaml")

	out, _, err := execute(t, fsys, "replay", "scenarios/tick.yaml", "--db", db, "--run", tick)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+tick)

	out, _, err = execute(t, fsys, "replay", "scenarios/tick.yaml", "--db", db, "--run", wrong)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotReplayable+"]")

	out, _, err = execute(t, fsys, "replay", "scenarios/tick.yaml", "--db", db, "--run", "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeRunNotFound+"]")
}
