package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/dsl"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Registry holds the components run and test can execute.
	Registry *dsl.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pipekit CLI. Components
// named by pipelines are looked up in reg.
func NewRootCommand(reg *dsl.Registry) *cobra.Command {
	if reg == nil {
		reg = dsl.NewRegistry()
	}
	opts := &RootOptions{Registry: reg}

	cmd := &cobra.Command{
		Use:   "pipekit",
		Short: "pipekit - local pipeline runner",
		Long: `Compile, validate and run component pipelines declared in CUE.

Every run is recorded in a SQLite database: task invocations, completions,
artifacts and the paths downstream tasks observed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
