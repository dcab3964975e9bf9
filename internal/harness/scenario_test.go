package harness

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/ir"
	"github.com/roach88/tempo/internal/testutil"
)

const sameYAML = `
name: same
fibers:
  - name: main
    ops:
      - value: {a: 1, b: [true, null]}
      - delay: 1s
steps: [10, 2000]
`

const sameJSON = `{
  "name": "same",
  "fibers": [{"name": "main", "ops": [{"value": {"a": 1, "b": [true, null]}}, {"delay": "1s"}]}],
  "steps": [10, 2000]
}`

const sameCUE = `
name: "same"
fibers: [{
	name: "main"
	ops: [{value: {a: 1, b: [true, null]}}, {delay: "1s"}]
}]
steps: [10, 2000]
`

func requireLoadError(t *testing.T, err error, code string) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, code, le.Code, "error: %v", err)
	return le
}

func TestLoadScenario_YAML(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"s/same.yaml": sameYAML})

	sc, err := LoadScenario(fsys, "s/same.yaml")
	require.NoError(t, err)

	assert.Equal(t, "same", sc.Name)
	require.Len(t, sc.Fibers, 1)
	require.Len(t, sc.Fibers[0].Ops, 2)
	assert.Equal(t, map[string]any{"a": 1, "b": []any{true, nil}}, sc.Fibers[0].Ops[0].Value.V)
	assert.Equal(t, ir.Time(1000), *sc.Fibers[0].Ops[1].Delay)
	assert.Equal(t, []ir.Time{10, 2000}, sc.Steps)
}

func TestLoadScenario_FormatsDecodeAlike(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{
		"same.yaml": sameYAML,
		"same.json": sameJSON,
		"same.cue":  sameCUE,
	})

	var hashes []string
	for _, path := range []string{"same.yaml", "same.json", "same.cue"} {
		sc, err := LoadScenario(fsys, path)
		require.NoError(t, err, path)
		hash, err := ir.ScenarioHash(sc)
		require.NoError(t, err, path)
		hashes = append(hashes, hash)
	}
	assert.Equal(t, hashes[0], hashes[1], "yaml and json")
	assert.Equal(t, hashes[0], hashes[2], "yaml and cue")
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	tests := []struct {
		path    string
		content string
	}{
		{"typo.yaml", "name: typo\nfibers: []\nexpects: []\n"},
		{"typo.json", `{"name": "typo", "fibers": [], "expects": []}`},
		{"typo.cue", "name: \"typo\"\nfibers: []\nexpects: []\n"},
		{"op.yaml", "name: op\nfibers:\n  - name: main\n    ops:\n      - wait: 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fsys := testutil.MemFs(t, map[string]string{tt.path: tt.content})
			_, err := LoadScenario(fsys, tt.path)
			requireLoadError(t, err, ErrCodeParseFailed)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(afero.NewMemMapFs(), "missing.yaml")
	le := requireLoadError(t, err, ErrCodeNotFound)
	assert.Equal(t, "missing.yaml", le.Path)
	assert.Contains(t, err.Error(), "missing.yaml: E005")
}

func TestLoadScenario_UnsupportedExtension(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"s.toml": "name = 1"})
	_, err := LoadScenario(fsys, "s.toml")
	requireLoadError(t, err, ErrCodeFormat)
}

func TestLoadScenario_EmptyDocument(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"empty.yaml": "", "empty.json": "  "})
	for _, path := range []string{"empty.yaml", "empty.json"} {
		_, err := LoadScenario(fsys, path)
		requireLoadError(t, err, ErrCodeParseFailed)
		assert.Contains(t, err.Error(), "empty document")
	}
}

func TestLoadScenario_TrailingJSON(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"two.json": `{"name": "a", "fibers": []} {"name": "b"}`})
	_, err := LoadScenario(fsys, "two.json")
	requireLoadError(t, err, ErrCodeParseFailed)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestLoadScenario_BadTime(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"t.yaml": "name: t\nfibers: []\nsteps: [soon]\n"})
	_, err := LoadScenario(fsys, "t.yaml")
	requireLoadError(t, err, ErrCodeParseFailed)
}

func TestLoadScenario_CUESyntaxErrorHasPosition(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"broken.cue": "name: \"broken\"\nfibers: [\n"})
	_, err := LoadScenario(fsys, "broken.cue")
	le := requireLoadError(t, err, ErrCodeParseFailed)
	require.True(t, le.Pos.IsValid(), "position expected: %v", err)
	assert.Contains(t, le.Pos.Filename(), "broken.cue")
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestLoadScenario_CUEMustBeConcrete(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"open.cue": "name: string\nfibers: []\n"})
	_, err := LoadScenario(fsys, "open.cue")
	requireLoadError(t, err, ErrCodeBuildFailed)
}

func TestLoadScenario_CUEDefinitionsAreNotExported(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"def.cue": `
#Fiber: {name: string, ops: [...]}
name: "def"
fibers: [#Fiber & {name: "main", ops: [{value: 1}]}]
`})
	sc, err := LoadScenario(fsys, "def.cue")
	require.NoError(t, err)
	require.Len(t, sc.Fibers, 1)
	assert.Equal(t, "main", sc.Fibers[0].Name)
	assert.Equal(t, 1, sc.Fibers[0].Ops[0].Value.V)
}

func TestFindScenarioFiles(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{
		"s/b.yaml":       sameYAML,
		"s/a.json":       sameJSON,
		"s/nested/c.cue": sameCUE,
		"s/README.md":    "# scenarios",
		"s/d.YML":        sameYAML,
	})

	files, err := FindScenarioFiles(fsys, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"s/a.json", "s/b.yaml", "s/d.YML", "s/nested/c.cue"}, files)
}

func TestLoadScenarios(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{
		"s/good.yaml": sameYAML,
		"s/bad.json":  "{",
	})

	scenarios, errs := LoadScenarios(fsys, "s")
	require.Len(t, scenarios, 1)
	assert.Equal(t, "same", scenarios[0].Name)
	require.Len(t, errs, 1)
	requireLoadError(t, errs[0], ErrCodeParseFailed)
}

func TestLoadScenarios_DirectoryErrors(t *testing.T) {
	fsys := testutil.MemFs(t, map[string]string{"file.yaml": sameYAML, "empty/README.md": ""})

	tests := []struct {
		dir  string
		code string
	}{
		{"missing", ErrCodeNotFound},
		{"file.yaml", ErrCodeNotFound},
		{"empty", ErrCodeNoFiles},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			scenarios, errs := LoadScenarios(fsys, tt.dir)
			assert.Nil(t, scenarios)
			require.Len(t, errs, 1)
			requireLoadError(t, errs[0], tt.code)
		})
	}
}
