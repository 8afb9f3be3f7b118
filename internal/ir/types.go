package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Type names used in ParamSpec.Type and ComponentSpec.Returns.
const (
	TypeString   = "string"
	TypeInt      = "int"
	TypeBool     = "bool"
	TypeList     = "list"
	TypeStruct   = "struct"
	TypeArtifact = "artifact"
)

// ValidTypes defines allowed parameter and return types.
var ValidTypes = map[string]bool{
	TypeString:   true,
	TypeInt:      true,
	TypeBool:     true,
	TypeList:     true,
	TypeStruct:   true,
	TypeArtifact: true,
}

// Parameter kinds.
const (
	KindParameter = "parameter" // plain value
	KindInput     = "input"     // read-only artifact
	KindOutput    = "output"    // writable artifact handle
)

// ValidKinds defines allowed parameter kinds.
var ValidKinds = map[string]bool{
	KindParameter: true,
	KindInput:     true,
	KindOutput:    true,
}

// DefaultOutput is the name of the artifact holding a component's return value.
const DefaultOutput = "Output"

// ParentRunIDParam is the reserved parameter through which an exit handler
// receives the ID of the run it is attached to.
const ParentRunIDParam = "parent_run_id"

// Task outcomes.
const (
	OutcomeSucceeded = "Succeeded"
	OutcomeFailed    = "Failed"
	OutcomeSkipped   = "Skipped"
)

// Run statuses.
const (
	RunRunning   = "Running"
	RunSucceeded = "Succeeded"
	RunFailed    = "Failed"
)

// ComponentSpec represents a declared unit of work.
type ComponentSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"params"`
	Returns     string      `json:"returns,omitempty"` // empty = no return value
}

// Param returns the parameter with the given name.
func (c ComponentSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// ParamSpec is one typed parameter of a component.
type ParamSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Kind string `json:"kind"`
}

// IsArtifact reports whether the parameter takes an artifact handle.
func (p ParamSpec) IsArtifact() bool {
	return p.Kind == KindInput || p.Kind == KindOutput
}

// PipelineSpec is a DAG of tasks. Edges are induced by artifact references
// between task arguments.
type PipelineSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tasks       []TaskSpec `json:"tasks"`
	ExitHandler *TaskSpec  `json:"exit_handler,omitempty"` // runs after all tasks, whatever their outcome
}

// Task returns the task with the given ID, including the exit handler.
func (p PipelineSpec) Task(id string) (TaskSpec, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	if p.ExitHandler != nil && p.ExitHandler.ID == id {
		return *p.ExitHandler, true
	}
	return TaskSpec{}, false
}

// TaskSpec is one invocation of a component inside a pipeline.
type TaskSpec struct {
	ID          string             `json:"id"`
	Component   string             `json:"component"`
	Args        map[string]ArgSpec `json:"args,omitempty"`         // keyword -> binding
	OutputPaths map[string]string  `json:"output_paths,omitempty"` // output name -> custom URI
}

// ArgNames returns the task's keyword argument names in sorted order.
func (t TaskSpec) ArgNames() []string {
	names := make([]string, 0, len(t.Args))
	for name := range t.Args {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dependencies returns the IDs of tasks this task references, sorted and
// deduplicated.
func (t TaskSpec) Dependencies() []string {
	var deps []string
	for _, arg := range t.Args {
		if arg.IsRef() && !slices.Contains(deps, arg.Task) {
			deps = append(deps, arg.Task)
		}
	}
	slices.Sort(deps)
	return deps
}

// ArgSpec binds a task argument to either a literal value or an output of
// an upstream task. Exactly one of Value or Task is set.
type ArgSpec struct {
	Value  Value  `json:"value,omitempty"`
	Task   string `json:"task,omitempty"`
	Output string `json:"output,omitempty"`
}

// Literal returns an ArgSpec bound to a value.
func Literal(v Value) ArgSpec {
	return ArgSpec{Value: v}
}

// Ref returns an ArgSpec bound to a named output of another task.
func Ref(task, output string) ArgSpec {
	return ArgSpec{Task: task, Output: output}
}

// IsRef reports whether the argument references an upstream artifact.
func (a ArgSpec) IsRef() bool {
	return a.Task != ""
}

type argSpecJSON struct {
	Value  json.RawMessage `json:"value,omitempty"`
	Task   string          `json:"task,omitempty"`
	Output string          `json:"output,omitempty"`
}

// MarshalJSON implements json.Marshaler for ArgSpec.
func (a ArgSpec) MarshalJSON() ([]byte, error) {
	if a.IsRef() {
		return json.Marshal(argSpecJSON{Task: a.Task, Output: a.Output})
	}
	raw, err := MarshalValue(a.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(argSpecJSON{Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler for ArgSpec.
func (a *ArgSpec) UnmarshalJSON(data []byte) error {
	var raw argSpecJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Task != "" {
		if len(raw.Value) > 0 {
			return fmt.Errorf("argument has both a value and a task reference")
		}
		*a = Ref(raw.Task, raw.Output)
		return nil
	}
	if len(raw.Value) == 0 {
		return fmt.Errorf("argument has neither a value nor a task reference")
	}
	v, err := UnmarshalValue(raw.Value)
	if err != nil {
		return err
	}
	*a = Literal(v)
	return nil
}

// Run is one execution of a pipeline.
type Run struct {
	ID            string `json:"id"`
	Pipeline      string `json:"pipeline"`
	PipelineHash  string `json:"pipeline_hash"`
	PipelineRoot  string `json:"pipeline_root"`
	Status        string `json:"status"`
	StartSeq      int64  `json:"start_seq"`
	EndSeq        int64  `json:"end_seq,omitempty"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// TaskInvocation records that a task started with its resolved arguments.
// Artifact arguments appear as the URI the task was handed.
type TaskInvocation struct {
	ID        string   `json:"id"` // Content-addressed hash
	RunID     string   `json:"run_id"`
	TaskID    string   `json:"task_id"`
	Component string   `json:"component"`
	Args      Struct   `json:"args"`
	Dropped   []string `json:"dropped,omitempty"` // keyword args with no matching parameter
	Seq       int64    `json:"seq"`
}

// TaskCompletion records the outcome of a task.
type TaskCompletion struct {
	ID           string `json:"id"`                      // Content-addressed hash
	InvocationID string `json:"invocation_id,omitempty"` // empty for skipped tasks
	RunID        string `json:"run_id"`
	TaskID       string `json:"task_id"`
	Outcome      string `json:"outcome"`
	Result       Value  `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
	Seq          int64  `json:"seq"`
}

// ArtifactRecord is the latest known state of an artifact.
type ArtifactRecord struct {
	ID     string `json:"id"` // Content-addressed over (run, task, output)
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id"`
	Output string `json:"output"`
	URI    string `json:"uri"`
	Custom bool   `json:"custom"`
	Value  Value  `json:"value,omitempty"`
	Seq    int64  `json:"seq"`
}

// ArtifactRead records that an invocation was handed an artifact through a
// parameter, and which URI it observed.
type ArtifactRead struct {
	InvocationID string `json:"invocation_id"`
	ArtifactID   string `json:"artifact_id"`
	Param        string `json:"param"`
	URI          string `json:"uri"`
	Seq          int64  `json:"seq"`
}
