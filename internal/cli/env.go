package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/engine"
)

// Environment variables that supply flag defaults. Flags given on the
// command line win.
const (
	EnvPipelineRoot = "PIPEKIT_PIPELINE_ROOT"
	EnvStrict       = "PIPEKIT_STRICT"
)

// envPipelineRoot returns $PIPEKIT_PIPELINE_ROOT, or the engine default.
func envPipelineRoot() string {
	if v := strings.TrimSpace(os.Getenv(EnvPipelineRoot)); v != "" {
		return v
	}
	return engine.DefaultPipelineRoot
}

// envStrict parses $PIPEKIT_STRICT. Unset means false.
func envStrict() (bool, error) {
	v := strings.TrimSpace(os.Getenv(EnvStrict))
	if v == "" {
		return false, nil
	}
	strict, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: %w", EnvStrict, v, err)
	}
	return strict, nil
}

// resolveStrict applies the --strict flag over the environment.
func resolveStrict(cmd *cobra.Command, flag bool) (bool, error) {
	if cmd.Flags().Changed("strict") {
		return flag, nil
	}
	strict, err := envStrict()
	if err != nil {
		return false, WrapExitError(ExitCommandError, "invalid environment", err)
	}
	return strict, nil
}

// resolvePipelineRoot applies the --pipeline-root flag over the environment.
func resolvePipelineRoot(cmd *cobra.Command, flag string) string {
	if cmd.Flags().Changed("pipeline-root") {
		return flag
	}
	return envPipelineRoot()
}
