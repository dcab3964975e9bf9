package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/harness"
	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/testutil"
)

const tickYAML = `
name: tick
fibers:
  - name: main
    ops:
      - delay: 10
      - mark: tick
      - value: done
steps: [20]
expect:
  - fiber: main
    value: done
    ended: true
marks: [tick@10]
`

// tickJSON is tickYAML written as JSON.
const tickJSON = `{
  "name": "tick",
  "fibers": [{"name": "main", "ops": [{"delay": 10}, {"mark": "tick"}, {"value": "done"}]}],
  "steps": [20],
  "expect": [{"fiber": "main", "value": "done", "ended": true}],
  "marks": ["tick@10"]
}`

const wrongYAML = `
name: wrong
fibers:
  - name: main
    ops:
      - value: done
steps: [20]
expect:
  - fiber: main
    value: other
`

const emptyYAML = `
name: empty
fibers: []
steps: [10]
`

// scenarioFs returns an in-memory filesystem with the test scenarios.
func scenarioFs(t *testing.T) afero.Fs {
	return testutil.MemFs(t, map[string]string{
		"scenarios/tick.yaml":  tickYAML,
		"scenarios/wrong.yaml": wrongYAML,
		"invalid/empty.yaml":   emptyYAML,
		"other/tick.json":      tickJSON,
	})
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, fsys afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(fsys)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse decodes a JSON response, with its data decoded into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	resp.Data = data
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// tempDB returns the path of a database in a temporary directory.
func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "tempo.db")
}

// saveRun runs a scenario with --db and returns the stored run ID.
func saveRun(t *testing.T, fsys afero.Fs, db, path string) string {
	t.Helper()
	out, _, _ := execute(t, fsys, "run", path, "--db", db, "--format", "json")
	resp := decodeResponse(t, out, &RunResult{})
	require.NotEmpty(t, resp.RunID, "output: %s", out)
	return resp.RunID
}

// mustLoad loads a scenario file for comparison with command output.
func mustLoad(t *testing.T, fsys afero.Fs, path string) *ir.Scenario {
	t.Helper()
	sc, err := harness.LoadScenario(fsys, path)
	require.NoError(t, err)
	return sc
}
