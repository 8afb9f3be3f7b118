package harness

import (
	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
)

// TraceEvent is one entry of a run timeline, flattened for assertions and
// golden snapshots. Which fields are set depends on Type.
type TraceEvent struct {
	Type string
	Seq  int64
	Task string

	// invocation
	Component string
	Args      ir.Struct
	Dropped   []string

	// artifact_read and artifact
	Param  string
	Output string
	URI    string
	Custom bool
	Value  ir.Value

	// completion
	Outcome string
	Result  ir.Value
	Error   string
}

// Result is the outcome of a scenario execution.
type Result struct {
	Scenario string

	// Pass is true when the run matched every expectation.
	Pass bool

	RunID  string
	Status string

	// ErrorCode is the runtime error code the run was rejected with,
	// if it was rejected before starting.
	ErrorCode string

	// Trace holds every recorded event in seq order.
	Trace []TraceEvent

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceEvents flattens a stored run into its timeline.
func traceEvents(tr store.RunTrace) []TraceEvent {
	events := tr.Events()
	out := make([]TraceEvent, 0, len(events))
	for _, e := range events {
		te := TraceEvent{Type: e.Type.String(), Seq: e.Seq, Task: e.TaskID}
		switch e.Type {
		case store.EventInvocation:
			te.Component = e.Invocation.Component
			te.Args = e.Invocation.Args
			te.Dropped = e.Invocation.Dropped
		case store.EventArtifactRead:
			te.Param = e.Read.Param
			te.URI = e.Read.URI
		case store.EventArtifact:
			te.Output = e.Artifact.Output
			te.URI = e.Artifact.URI
			te.Custom = e.Artifact.Custom
			te.Value = e.Artifact.Value
		case store.EventCompletion:
			te.Outcome = e.Completion.Outcome
			te.Result = e.Completion.Result
			te.Error = e.Completion.Error
		}
		out = append(out, te)
	}
	return out
}

// snapshot returns the event as an IR struct for canonical serialization.
// Empty optional fields are left out.
func (e TraceEvent) snapshot() ir.Struct {
	s := ir.Struct{
		"type": ir.String(e.Type),
		"seq":  ir.Int(e.Seq),
		"task": ir.String(e.Task),
	}
	switch e.Type {
	case "invocation":
		s["component"] = ir.String(e.Component)
		args := e.Args
		if args == nil {
			args = ir.Struct{}
		}
		s["args"] = args
		if len(e.Dropped) > 0 {
			dropped := make(ir.List, len(e.Dropped))
			for i, d := range e.Dropped {
				dropped[i] = ir.String(d)
			}
			s["dropped"] = dropped
		}
	case "artifact_read":
		s["param"] = ir.String(e.Param)
		s["uri"] = ir.String(e.URI)
	case "artifact":
		s["output"] = ir.String(e.Output)
		s["uri"] = ir.String(e.URI)
		s["custom"] = ir.Bool(e.Custom)
		if e.Value != nil {
			s["value"] = e.Value
		}
	case "completion":
		s["outcome"] = ir.String(e.Outcome)
		if e.Result != nil {
			s["result"] = e.Result
		}
		if e.Error != "" {
			s["error"] = ir.String(e.Error)
		}
	}
	return s
}
