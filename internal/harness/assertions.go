package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the run timeline to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s%s\n", event.Seq, event.Type, event.Task, describe(event))
		}
	}
	return buf.String()
}

func describe(e TraceEvent) string {
	switch e.Type {
	case "artifact_read":
		return fmt.Sprintf(" %s <- %s", e.Param, e.URI)
	case "artifact":
		return fmt.Sprintf(" %s -> %s", e.Output, e.URI)
	case "completion":
		if e.Error != "" {
			return fmt.Sprintf(" %s: %s", e.Outcome, e.Error)
		}
		return " " + e.Outcome
	default:
		return ""
	}
}

// EvaluateAssertions checks every assertion against a recorded run and
// returns the failure messages.
func EvaluateAssertions(tr store.RunTrace, trace []TraceEvent, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRunStatus:
			err = assertRunStatus(tr, a)
		case AssertTaskOutcome:
			err = assertTaskOutcome(tr, a)
		case AssertArtifactPath:
			err = assertArtifactPath(tr, a)
		case AssertObservedPath:
			err = assertObservedPath(tr, a)
		case AssertTaskOrder:
			err = assertTaskOrder(tr, a)
		case AssertArtifactValue:
			err = assertArtifactValue(tr, a)
		case AssertTaskError:
			err = assertTaskError(tr, a)
		case AssertDroppedArgs:
			err = assertDroppedArgs(tr, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = trace
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertRunStatus(tr store.RunTrace, a Assertion) error {
	if tr.Run.Status != a.Status {
		return &AssertionError{
			Type:     AssertRunStatus,
			Expected: "run " + a.Status,
			Actual:   "run " + tr.Run.Status,
		}
	}
	return nil
}

func assertTaskOutcome(tr store.RunTrace, a Assertion) error {
	got := tr.Outcome(a.Task)
	if got == a.Outcome {
		return nil
	}
	if got == "" {
		got = "no completion"
	}
	return &AssertionError{
		Type:     AssertTaskOutcome,
		Expected: fmt.Sprintf("task %s %s", a.Task, a.Outcome),
		Actual:   got,
	}
}

// findArtifact returns the artifact a task recorded for an output.
func findArtifact(tr store.RunTrace, task, output string) (ir.ArtifactRecord, bool) {
	if output == "" {
		output = ir.DefaultOutput
	}
	i := slices.IndexFunc(tr.Artifacts, func(r ir.ArtifactRecord) bool {
		return r.TaskID == task && r.Output == output
	})
	if i < 0 {
		return ir.ArtifactRecord{}, false
	}
	return tr.Artifacts[i], true
}

func assertArtifactPath(tr store.RunTrace, a Assertion) error {
	art, ok := findArtifact(tr, a.Task, a.Output)
	if !ok {
		return &AssertionError{
			Type:     AssertArtifactPath,
			Expected: fmt.Sprintf("artifact %s.%s at %s", a.Task, outputName(a), a.URI),
			Actual:   "artifact not recorded",
		}
	}
	if art.URI != a.URI {
		return &AssertionError{
			Type:     AssertArtifactPath,
			Expected: fmt.Sprintf("artifact %s.%s at %s", a.Task, outputName(a), a.URI),
			Actual:   "stored at " + art.URI,
		}
	}
	if a.Custom != nil && art.Custom != *a.Custom {
		return &AssertionError{
			Type:     AssertArtifactPath,
			Expected: fmt.Sprintf("artifact %s.%s custom=%t", a.Task, outputName(a), *a.Custom),
			Actual:   fmt.Sprintf("custom=%t", art.Custom),
		}
	}
	return nil
}

func assertObservedPath(tr store.RunTrace, a Assertion) error {
	for _, edge := range tr.Lineage() {
		if edge.Consumer != a.Task || edge.Param != a.Param {
			continue
		}
		if edge.URI != a.URI {
			return &AssertionError{
				Type:     AssertObservedPath,
				Expected: fmt.Sprintf("task %s observes %s through %s", a.Task, a.URI, a.Param),
				Actual:   "observed " + edge.URI,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertObservedPath,
		Expected: fmt.Sprintf("task %s observes %s through %s", a.Task, a.URI, a.Param),
		Actual:   "no artifact handed to that parameter",
	}
}

func assertTaskOrder(tr store.RunTrace, a Assertion) error {
	started := make([]string, 0, len(tr.Invocations))
	for _, inv := range tr.Invocations {
		started = append(started, inv.TaskID)
	}

	pos := 0
	for _, want := range a.Tasks {
		i := slices.Index(started[pos:], want)
		if i < 0 {
			return &AssertionError{
				Type:     AssertTaskOrder,
				Expected: fmt.Sprintf("tasks started in order %v", a.Tasks),
				Actual:   fmt.Sprintf("started %v", started),
			}
		}
		pos += i + 1
	}
	return nil
}

func assertArtifactValue(tr store.RunTrace, a Assertion) error {
	want, err := ir.FromGo(a.Value)
	if err != nil {
		return fmt.Errorf("artifact_value %s: %w", a.Task, err)
	}
	art, ok := findArtifact(tr, a.Task, a.Output)
	if !ok {
		return &AssertionError{
			Type:     AssertArtifactValue,
			Expected: fmt.Sprintf("artifact %s.%s = %s", a.Task, outputName(a), render(want)),
			Actual:   "artifact not recorded",
		}
	}
	if art.Value == nil || !ir.Equal(want, art.Value) {
		return &AssertionError{
			Type:     AssertArtifactValue,
			Expected: fmt.Sprintf("artifact %s.%s = %s", a.Task, outputName(a), render(want)),
			Actual:   render(art.Value),
		}
	}
	return nil
}

func assertTaskError(tr store.RunTrace, a Assertion) error {
	for _, c := range tr.Completions {
		if c.TaskID != a.Task {
			continue
		}
		if !strings.Contains(c.Error, a.Contains) {
			return &AssertionError{
				Type:     AssertTaskError,
				Expected: fmt.Sprintf("task %s error containing %q", a.Task, a.Contains),
				Actual:   fmt.Sprintf("%q", c.Error),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTaskError,
		Expected: fmt.Sprintf("task %s error containing %q", a.Task, a.Contains),
		Actual:   "no completion",
	}
}

func assertDroppedArgs(tr store.RunTrace, a Assertion) error {
	for _, inv := range tr.Invocations {
		if inv.TaskID != a.Task {
			continue
		}
		if !slices.Equal(inv.Dropped, a.Args) {
			return &AssertionError{
				Type:     AssertDroppedArgs,
				Expected: fmt.Sprintf("task %s dropped %v", a.Task, a.Args),
				Actual:   fmt.Sprintf("dropped %v", inv.Dropped),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertDroppedArgs,
		Expected: fmt.Sprintf("task %s dropped %v", a.Task, a.Args),
		Actual:   "task never started",
	}
}

func outputName(a Assertion) string {
	if a.Output == "" {
		return ir.DefaultOutput
	}
	return a.Output
}

// render formats a value as canonical JSON for messages.
func render(v ir.Value) string {
	if v == nil {
		return "nothing"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
