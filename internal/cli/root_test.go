package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/fixture"
)

// specsDir is the fixture package: three components and the custom path
// pipeline.
var specsDir = filepath.Join("..", "fixture", "testdata", "specs")

func fixtureRegistry(t *testing.T) *dsl.Registry {
	t.Helper()
	reg := dsl.NewRegistry()
	require.NoError(t, fixture.Register(reg))
	return reg
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(fixtureRegistry(t))
	return executeCommand(cmd, args...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "pipekit", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)

	for _, name := range []string{"compile", "validate", "run", "trace", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(nil)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   map[string]string // name -> default
	}{
		{"compile", map[string]string{"output": "", "strict": "false"}},
		{"validate", map[string]string{"strict": "false"}},
		{"run", map[string]string{"db": "", "pipeline": "", "pipeline-root": "/tmp/pipekit", "run-id": "", "strict": "false", "max-tasks": "0"}},
		{"trace", map[string]string{"db": "", "run": "", "task": ""}},
		{"test", map[string]string{"update": "false", "filter": "", "golden": "", "concurrency": "4"}},
	}

	cmd := NewRootCommand(nil)
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			for name, def := range tt.flags {
				f := sub.Flags().Lookup(name)
				if assert.NotNil(t, f, "flag --%s", name) {
					assert.Equal(t, def, f.DefValue, "flag --%s", name)
				}
			}
		})
	}

	compile, _, _ := cmd.Find([]string{"compile"})
	assert.Equal(t, "o", compile.Flags().Lookup("output").Shorthand)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("JSON"))

	_, _, err := execute(t, "--format", "xml", "validate", specsDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
