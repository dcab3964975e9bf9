package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempo/internal/compiler"
)

func TestValidate_ValidFile(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "validate", "scenarios/tick.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tick")
	assert.Contains(t, out, "All 1 scenario(s) valid")
}

func TestValidate_Directory(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "validate", "scenarios", "other/tick.json")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tick")
	assert.Contains(t, out, "✓ wrong", "failing expectations are still valid")
	assert.Contains(t, out, "All 3 scenario(s) valid")
}

func TestValidate_InvalidScenario(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "validate", "scenarios/tick.yaml", "invalid")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, out, "✓ tick")
	assert.Contains(t, out, "✗ empty")
	assert.Contains(t, out, "[E101] fibers: at least one fiber is required")
}

func TestValidate_JSON(t *testing.T) {
	out, _, err := execute(t, scenarioFs(t), "validate", "invalid/empty.yaml", "--format", "json")
	require.Error(t, err)

	var results []ValidationResult
	resp := decodeResponse(t, out, &results)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrNoFibers, resp.Error.Code)
	require.Len(t, results, 1)
	assert.False(t, results[0].Valid)
	assert.Equal(t, "empty", results[0].Scenario)

	out, _, err = execute(t, scenarioFs(t), "validate", "scenarios/tick.yaml", "--format", "json")
	require.NoError(t, err)
	results = nil
	resp = decodeResponse(t, out, &results)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
}

func TestValidate_LoadError(t *testing.T) {
	fsys := scenarioFs(t)
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing file", "scenarios/missing.yaml", "E005"},
		{"unsupported", "scenarios/notes.txt", "E008"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, fsys, "validate", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
