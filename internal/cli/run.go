package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/compiler"
	"github.com/roach88/pipekit/internal/engine"
	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Pipeline     string
	PipelineRoot string
	RunID        string
	Strict       bool
	MaxTasks     int
}

// RunResult is the outcome of a run as printed by the run command.
type RunResult struct {
	RunID    string                     `json:"run_id"`
	Pipeline string                     `json:"pipeline"`
	Status   string                     `json:"status"`
	Tasks    []TaskResult               `json:"tasks"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// TaskResult is one task's recorded outcome.
type TaskResult struct {
	Task    string `json:"task"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Run a pipeline locally",
		Long: `Run a pipeline declared in CUE with the registered components.

Tasks execute one at a time in dependency order. Every invocation,
completion, artifact and artifact read is recorded in the SQLite
database, which is created if it does not exist. A failed task skips its
dependents; the exit handler, if any, always runs.

--pipeline may be omitted when the specs declare a single pipeline.
--pipeline-root defaults to $PIPEKIT_PIPELINE_ROOT, then /tmp/pipekit.
--strict defaults to $PIPEKIT_STRICT.

Exit codes:
  0 - Run succeeded
  1 - Run failed or was interrupted
  2 - Command error (specs do not load, unknown pipeline, rejected pipeline)

Examples:
  pipekit run ./specs --db ./runs.db
  pipekit run ./specs --db ./runs.db --pipeline nightly --run-id nightly-1
  pipekit run ./specs --db ./runs.db --pipeline-root /data --strict`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline to run")
	cmd.Flags().StringVar(&opts.PipelineRoot, "pipeline-root", engine.DefaultPipelineRoot, "root of default artifact URIs")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run ID (default: generated UUIDv7)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "reject pipelines with binding warnings")
	cmd.Flags().IntVar(&opts.MaxTasks, "max-tasks", engine.DefaultMaxTasks, "maximum task executions per run")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPipeline(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	strict, err := resolveStrict(cmd, opts.Strict)
	if err != nil {
		return err
	}
	pipelineRoot := resolvePipelineRoot(cmd, opts.PipelineRoot)

	logger.Debug("loading specs", "dir", specsDir)
	loaded, errs := compiler.LoadSpecs(specsDir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		code, message := loadErrorParts(errs[0])
		_ = formatter.Error(code, errs[0].Error(), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	pipeline, err := selectPipeline(loaded, opts.Pipeline)
	if err != nil {
		_ = formatter.Error(string(engine.ErrCodeInvalidPipeline), err.Error(), nil)
		return WrapExitError(ExitCommandError, "no pipeline to run", err)
	}

	logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := engine.New(st, opts.Registry,
		engine.WithLogger(logger),
		engine.WithPipelineRoot(pipelineRoot),
		engine.WithStrictBindings(strict),
		engine.WithMaxTasks(opts.MaxTasks),
	)

	res, runErr := runner.Run(ctx, pipeline, opts.RunID)
	if res == nil {
		var rejected *engine.RuntimeError
		if errors.As(runErr, &rejected) {
			_ = formatter.Error(string(rejected.Code), rejected.Message, nil)
			return WrapExitError(ExitCommandError, "pipeline rejected", runErr)
		}
		return WrapExitError(ExitCommandError, "run failed to start", runErr)
	}

	result, err := buildRunResult(context.WithoutCancel(ctx), st, pipeline.Name, res)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	if err := outputRunResult(formatter, result); err != nil {
		return err
	}

	switch {
	case runErr != nil:
		return WrapExitError(ExitFailure, fmt.Sprintf("run %s interrupted", res.RunID), runErr)
	case res.Failed():
		return NewExitError(ExitFailure, fmt.Sprintf("run %s failed", res.RunID))
	}
	return nil
}

// selectPipeline picks the named pipeline, or the only one when name is
// empty.
func selectPipeline(loaded *compiler.LoadResult, name string) (ir.PipelineSpec, error) {
	if name == "" {
		if len(loaded.Pipelines) != 1 {
			return ir.PipelineSpec{}, fmt.Errorf("--pipeline is required when specs declare %d pipelines (%s)",
				len(loaded.Pipelines), strings.Join(loaded.PipelineNames(), ", "))
		}
		return loaded.Pipelines[0], nil
	}
	p, ok := loaded.Pipeline(name)
	if !ok {
		return ir.PipelineSpec{}, fmt.Errorf("pipeline %q not found (have %s)", name, strings.Join(loaded.PipelineNames(), ", "))
	}
	return p, nil
}

// buildRunResult reads task outcomes back from the store in completion
// order.
func buildRunResult(ctx context.Context, st *store.Store, pipeline string, res *engine.Result) (RunResult, error) {
	completions, err := st.ReadTaskCompletions(ctx, res.RunID)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{
		RunID:    res.RunID,
		Pipeline: pipeline,
		Status:   res.Status,
		Tasks:    make([]TaskResult, 0, len(completions)),
		Warnings: res.Warnings,
	}
	for _, c := range completions {
		result.Tasks = append(result.Tasks, TaskResult{Task: c.TaskID, Outcome: c.Outcome, Error: c.Error})
	}
	return result, nil
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (%s): %s\n\n", result.RunID, result.Pipeline, result.Status)
	fmt.Fprintln(w, "Tasks:")
	for _, t := range result.Tasks {
		fmt.Fprintf(w, "  %s %s %s", outcomeMark(t.Outcome), t.Task, t.Outcome)
		if t.Error != "" {
			fmt.Fprintf(w, ": %s", t.Error)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	printWarnings(formatter, result.Warnings)
	return nil
}

func outcomeMark(outcome string) string {
	switch outcome {
	case ir.OutcomeSucceeded:
		return "✓"
	case ir.OutcomeFailed:
		return "✗"
	default:
		return "-"
	}
}
