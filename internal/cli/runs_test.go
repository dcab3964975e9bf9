package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/ir"
)

func TestRuns_Empty(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "runs", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")

	out, _, err = execute(t, scenarioFs(t), "runs", "--db", tempDB(t), "--format", "json")
	require.NoError(t, err)
	var runs []RunSummary
	resp := decodeResponse(t, out, &runs)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, runs)
}

func TestRuns_List(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	tick := saveRun(t, fsys, db, "scenarios/tick.yaml")
	wrong := saveRun(t, fsys, db, "scenarios/wrong.yaml")

	out, _, err := execute(t, fsys, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, tick+"  passed  tick")
	assert.Contains(t, out, wrong+"  failed  wrong")

	out, _, err = execute(t, fsys, "runs", "--db", db, "--format", "json")
	require.NoError(t, err)
	var runs []RunSummary
	decodeResponse(t, out, &runs)
	require.Len(t, runs, 2)
	// UUIDv7 IDs sort in creation order.
	assert.Equal(t, tick, runs[0].ID)
	assert.Equal(t, "20ms", runs[0].FinalTime)
	assert.Equal(t, ir.EngineVersion, runs[0].EngineVersion)
	assert.Equal(t, wrong, runs[1].ID)
}

func TestRuns_FilterByScenario(t *testing.T) {
	fsys := scenarioFs(t)
	db := tempDB(t)
	tick := saveRun(t, fsys, db, "scenarios/tick.yaml")
	saveRun(t, fsys, db, "scenarios/wrong.yaml")

	hash := ir.MustScenarioHash(mustLoad(t, fsys, "scenarios/tick.yaml"))
	out, _, err := execute(t, fsys, "runs", "--db", db, "--scenario", hash, "--format", "json")
	require.NoError(t, err)

	var runs []RunSummary
	decodeResponse(t, out, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, tick, runs[0].ID)
	assert.Equal(t, hash, runs[0].ScenarioHash)
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "sha256:0123456789ab...", shortDigest("sha256:0123456789abcdef0123"))
	assert.Equal(t, "short", shortDigest("short"))
}
