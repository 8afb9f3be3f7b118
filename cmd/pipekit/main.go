package main

import (
	"fmt"
	"os"

	"github.com/roach88/pipekit/internal/cli"
	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/fixture"
)

func main() {
	reg := dsl.NewRegistry()
	if err := fixture.Register(reg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCommandError)
	}

	// Commands print their own results; only the error line is left.
	if err := cli.NewRootCommand(reg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
