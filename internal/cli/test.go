package cli

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update      bool   // regenerate golden files
	Filter      string // scenario name filter (glob pattern)
	GoldenDir   string // default: <scenarios-dir>/../golden
	Concurrency int
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Status string   `json:"status,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against the engine",
		Long: `Run YAML scenarios against the real engine.

Each scenario names a specs directory and a pipeline, runs it in a fresh
in-memory database with the registered components, and checks its
assertions against the recorded trace. When a golden file exists for a
scenario its trace snapshot must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid scenario files, unknown pipeline, etc.)

Examples:
  pipekit test ./testdata/scenarios
  pipekit test ./testdata/scenarios --filter "custom-*"
  pipekit test ./testdata/scenarios --update
  pipekit test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name (glob pattern)")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenarios-dir>/../golden)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", harness.DefaultConcurrency, "scenarios run at once")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	scenarios, err := harness.LoadScenarios(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}

	scenarios, err = filterScenarios(scenarios, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	hopts := []harness.Option{harness.WithConcurrency(opts.Concurrency)}
	if opts.Verbose {
		hopts = append(hopts, harness.WithLogger(newLogger(cmd.ErrOrStderr(), true)))
	}
	h := harness.New(opts.Registry, hopts...)

	results, err := h.RunAll(cmd.Context(), scenarios)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario error", err)
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "..", "golden")
	}

	summary := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(results)),
		Total:     len(results),
	}
	for _, r := range results {
		sr := checkScenario(r, goldenDir, opts.Update)
		summary.Scenarios = append(summary.Scenarios, sr)
		if sr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if opts.Format == "json" {
		if err := outputTestJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		outputTestText(cmd, summary, opts.Update)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", summary.Failed, summary.Total))
	}
	return nil
}

// filterScenarios keeps scenarios whose name matches pattern.
func filterScenarios(scenarios []*harness.Scenario, pattern string) ([]*harness.Scenario, error) {
	if pattern == "" {
		return scenarios, nil
	}
	var kept []*harness.Scenario
	for _, sc := range scenarios {
		ok, err := path.Match(pattern, sc.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, sc)
		}
	}
	return kept, nil
}

// checkScenario folds the golden comparison, or update, into a result.
func checkScenario(r *harness.Result, goldenDir string, update bool) ScenarioResult {
	sr := ScenarioResult{
		Name:   r.Scenario,
		Pass:   r.Pass,
		RunID:  r.RunID,
		Status: r.Status,
		Errors: r.Errors,
	}

	if update {
		if err := harness.WriteGolden(goldenDir, r); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return sr
	}

	match, ok, err := harness.MatchGolden(goldenDir, r)
	switch {
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case ok && !match:
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

func outputTestText(cmd *cobra.Command, result TestResult, update bool) {
	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios matched.")
		return
	}

	for _, sr := range result.Scenarios {
		if !sr.Pass {
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
			continue
		}
		if update {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: status, Data: result})
}
