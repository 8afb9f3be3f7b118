package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Task     string // optional - filter to one task
}

// TimelineEvent is a single entry in a run timeline.
type TimelineEvent struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"` // invocation, artifact_read, artifact, completion
	Task      string    `json:"task"`
	ID        string    `json:"id,omitempty"`
	Component string    `json:"component,omitempty"`
	Args      ir.Struct `json:"args,omitempty"`
	Dropped   []string  `json:"dropped,omitempty"`
	Param     string    `json:"param,omitempty"`
	Output    string    `json:"output,omitempty"`
	URI       string    `json:"uri,omitempty"`
	Custom    bool      `json:"custom,omitempty"`
	Value     ir.Value  `json:"value,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LineageEdge links the task that produced an artifact to a task that was
// handed it.
type LineageEdge struct {
	Producer string `json:"producer"`
	Output   string `json:"output"`
	Consumer string `json:"consumer"`
	Param    string `json:"param"`
	URI      string `json:"uri"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      ir.Run          `json:"run"`
	Timeline []TimelineEvent `json:"timeline"`
	Lineage  []LineageEdge   `json:"lineage"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Invocations int `json:"invocations"`
	Completions int `json:"completions"`
	Artifacts   int `json:"artifacts"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what a run recorded",
		Long: `Show the recorded history of a run.

The output includes:
- Timeline: invocations, artifact reads, artifact writes and completions
  in logical-clock order
- Lineage: which task produced each artifact a task was handed, and the
  path the consumer observed
- Stats: summary counts for the run

Without --run, lists the runs in the database.

Examples:
  pipekit trace --db ./runs.db
  pipekit trace --db ./runs.db --run run-1
  pipekit trace --db ./runs.db --run run-1 --task validate-custom-path
  pipekit trace --db ./runs.db --run run-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace (omit to list runs)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "filter to a single task")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, opts, cmd)
	}

	tr, err := st.ReadTrace(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	result := buildTraceResult(tr, opts.Task)
	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if runs == nil {
		runs = []ir.Run{}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(w, "=== Runs ===")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %s  %s  seq %d-%d\n", r.ID, r.Pipeline, r.Status, r.StartSeq, r.EndSeq)
	}
	return nil
}

// buildTraceResult flattens a run trace. When task is set only that task's
// events and the lineage edges touching it are kept.
func buildTraceResult(tr store.RunTrace, task string) TraceResult {
	result := TraceResult{
		Run:      tr.Run,
		Timeline: []TimelineEvent{},
		Lineage:  []LineageEdge{},
	}

	for _, e := range tr.Events() {
		if task != "" && e.TaskID != task {
			continue
		}
		result.Timeline = append(result.Timeline, timelineEvent(e))
	}
	for _, edge := range tr.Lineage() {
		if task != "" && edge.Producer != task && edge.Consumer != task {
			continue
		}
		result.Lineage = append(result.Lineage, LineageEdge{
			Producer: edge.Producer,
			Output:   edge.Output,
			Consumer: edge.Consumer,
			Param:    edge.Param,
			URI:      edge.URI,
		})
	}

	result.Stats.TotalEvents = len(result.Timeline)
	for _, e := range result.Timeline {
		switch e.Type {
		case store.EventInvocation.String():
			result.Stats.Invocations++
		case store.EventArtifact.String():
			result.Stats.Artifacts++
		case store.EventCompletion.String():
			result.Stats.Completions++
			switch e.Outcome {
			case ir.OutcomeFailed:
				result.Stats.Failed++
			case ir.OutcomeSkipped:
				result.Stats.Skipped++
			}
		}
	}
	return result
}

func timelineEvent(e store.Event) TimelineEvent {
	out := TimelineEvent{Seq: e.Seq, Type: e.Type.String(), Task: e.TaskID}
	switch e.Type {
	case store.EventInvocation:
		out.ID = e.Invocation.ID
		out.Component = e.Invocation.Component
		out.Args = e.Invocation.Args
		out.Dropped = e.Invocation.Dropped
	case store.EventArtifactRead:
		out.ID = e.Read.ArtifactID
		out.Param = e.Read.Param
		out.URI = e.Read.URI
	case store.EventArtifact:
		out.ID = e.Artifact.ID
		out.Output = e.Artifact.Output
		out.URI = e.Artifact.URI
		out.Custom = e.Artifact.Custom
		out.Value = e.Artifact.Value
	case store.EventCompletion:
		out.ID = e.Completion.ID
		out.Outcome = e.Completion.Outcome
		out.Value = e.Completion.Result
		out.Error = e.Completion.Error
	}
	return out
}

func outputTraceJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Pipeline: %s\n", result.Run.Pipeline)
	fmt.Fprintf(w, "Status: %s\n", result.Run.Status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		formatTimelineEvent(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Lineage ===")
	if len(result.Lineage) == 0 {
		fmt.Fprintln(w, "  (no artifacts handed between tasks)")
	}
	for _, edge := range result.Lineage {
		fmt.Fprintf(w, "  %s.%s -> %s.%s (%s)\n", edge.Producer, edge.Output, edge.Consumer, edge.Param, edge.URI)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Invocations:  %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Completions:  %d\n", result.Stats.Completions)
	fmt.Fprintf(w, "  Artifacts:    %d\n", result.Stats.Artifacts)
	fmt.Fprintf(w, "  Failed:       %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Skipped:      %d\n", result.Stats.Skipped)
	return nil
}

func formatTimelineEvent(w io.Writer, e TimelineEvent, verbose bool) {
	switch e.Type {
	case "invocation":
		fmt.Fprintf(w, "  [%d] INV %s %s\n", e.Seq, e.Task, e.Component)
		if verbose {
			fmt.Fprintf(w, "       Args: %s\n", formatValue(e.Args))
		}
		if len(e.Dropped) > 0 {
			fmt.Fprintf(w, "       Dropped: %s\n", strings.Join(e.Dropped, ", "))
		}
	case "artifact_read":
		fmt.Fprintf(w, "  [%d] READ %s.%s <- %s\n", e.Seq, e.Task, e.Param, e.URI)
	case "artifact":
		custom := ""
		if e.Custom {
			custom = " (custom)"
		}
		fmt.Fprintf(w, "  [%d] ART %s.%s -> %s%s\n", e.Seq, e.Task, e.Output, e.URI, custom)
		if verbose && e.Value != nil {
			fmt.Fprintf(w, "       Value: %s\n", formatValue(e.Value))
		}
	case "completion":
		fmt.Fprintf(w, "  [%d] COMP %s %s\n", e.Seq, e.Task, e.Outcome)
		if e.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", e.Error)
		}
		if verbose && e.Value != nil {
			fmt.Fprintf(w, "       Result: %s\n", formatValue(e.Value))
		}
	}
	if verbose && e.ID != "" {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(e.ID))
	}
}

// formatValue renders a value as canonical JSON, so keys are always sorted.
func formatValue(v ir.Value) string {
	if v == nil {
		return "{}"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncateID shortens a content hash for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
