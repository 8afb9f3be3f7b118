package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

// scenarioDir writes one lenient scenario into <tmp>/scenarios and returns
// that directory. Golden files default to <tmp>/golden.
func scenarioDir(t *testing.T) string {
	t.Helper()
	specs, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "specs"))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.Mkdir(dir, 0o755))
	body := `name: lenient
description: keyword mismatch runs and fails
specs: ` + specs + `
pipeline: pipeline-with-custom-path-artifact
run_id: run-1
assertions:
  - type: run_status
    status: Failed
  - type: observed_path
    task: validate-custom-path
    param: input_list
    uri: /etc/test/file/path
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lenient.yaml"), []byte(body), 0o644))
	return dir
}

func TestTestCommandPasses(t *testing.T) {
	out, _, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ custom-path-lenient")
	assert.Contains(t, out, "✓ custom-path-strict")
	assert.Contains(t, out, "✓ append-then-validate")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", harnessScenarios, "--filter", "custom-*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	assert.Equal(t, "custom-path-lenient", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "run-1", resp.Data.Scenarios[0].RunID)
	assert.Equal(t, "Failed", resp.Data.Scenarios[0].Status)

	out, _, err = execute(t, "test", harnessScenarios, "--filter", "nothing-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios matched.")

	_, _, err = execute(t, "test", harnessScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := scenarioDir(t)
	golden := filepath.Join(filepath.Dir(dir), "golden", "lenient.golden")

	out, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lenient (golden updated)")
	require.FileExists(t, golden)

	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"lenient"}`), 0o644))
	out, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 1 scenario(s) failed")
	assert.Contains(t, out, "✗ lenient")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandGoldenDirFlag(t *testing.T) {
	dir := scenarioDir(t)
	golden := filepath.Join(t.TempDir(), "elsewhere")

	_, _, err := execute(t, "test", dir, "--update", "--golden", golden)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(golden, "lenient.golden"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "golden", "lenient.golden"))
}

func TestTestCommandReportsFailedAssertions(t *testing.T) {
	dir := scenarioDir(t)
	path := filepath.Join(dir, "lenient.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(string(data)+`  - type: task_outcome
    task: validate-custom-path
    outcome: Succeeded
`), 0o644))

	out, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios[0].Errors, 1)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "Expected: task validate-custom-path Succeeded")
}

func TestTestCommandErrors(t *testing.T) {
	t.Run("missing args", func(t *testing.T) {
		_, _, err := execute(t, "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg(s)")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nowhere"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("empty directory", func(t *testing.T) {
		_, _, err := execute(t, "test", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "no scenario files")
	})

	t.Run("unknown pipeline", func(t *testing.T) {
		dir := scenarioDir(t)
		path := filepath.Join(dir, "lenient.yaml")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		body := strings.Replace(string(data), "pipeline: pipeline-with-custom-path-artifact", "pipeline: nope", 1)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		_, _, err = execute(t, "test", dir)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), `pipeline "nope" not found`)
	})
}
