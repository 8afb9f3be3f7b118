package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/compiler"
)

func TestValidateFixtureSpecs(t *testing.T) {
	out, _, err := execute(t, "validate", specsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All specs valid")
	assert.Contains(t, out, "Warnings (2):")
	assert.Contains(t, out, `component "validate_custom_path" has no parameter "path"`)
}

func TestValidateStrict(t *testing.T) {
	out, _, err := execute(t, "validate", "--strict", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.WarnUnknownArgument)
	assert.Contains(t, out, compiler.WarnUnboundParam)
	assert.NotContains(t, out, "Warnings (")
}

func TestValidateJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "validate", specsDir)
		require.NoError(t, err)

		var resp struct {
			Status string           `json:"status"`
			Data   ValidationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.Data.Valid)
		assert.Len(t, resp.Data.Warnings, 2)
	})

	t.Run("invalid", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "validate", writeSpecs(t, cycleCUE))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp struct {
			Status string           `json:"status"`
			Error  CLIError         `json:"error"`
			Data   ValidationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.False(t, resp.Data.Valid)
		assert.Equal(t, compiler.ErrCycleDetected, resp.Error.Code)
	})
}

func TestValidateCollectsCompileErrors(t *testing.T) {
	dir := writeSpecs(t, `
component: a: params: x: float
component: b: params: y: {artifact: "sideways"}
`)
	out, _, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "component.a")
	assert.Contains(t, out, "component.b")
}

func TestValidateCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "nowhere"), compiler.LoadCodeNotFound},
		{"no cue files", t.TempDir(), compiler.LoadCodeNoFiles},
		{"syntax error", writeSpecs(t, "component: {"), compiler.LoadCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "validate", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestSplitDiagnostics(t *testing.T) {
	diags := []compiler.ValidationError{
		{Code: compiler.ErrCycleDetected},
		{Code: compiler.WarnUnboundParam},
	}

	failing, warnings := splitDiagnostics(diags, false)
	assert.Equal(t, diags[:1], failing)
	assert.Equal(t, diags[1:], warnings)

	failing, warnings = splitDiagnostics(diags, true)
	assert.Equal(t, diags, failing)
	assert.Empty(t, warnings)
}
