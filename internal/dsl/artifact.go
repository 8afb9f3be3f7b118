package dsl

import (
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

// TypeError is returned when an artifact does not hold the kind of value
// an operation needs.
type TypeError struct {
	URI  string
	Want string
	Got  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("artifact %s holds %s, want %s", e.URI, e.Got, e.Want)
}

// Artifact is the runtime handle a component receives for an artifact
// parameter. Writes through the handle are visible to every later reader
// of the same artifact.
type Artifact struct {
	uri      string
	custom   bool
	value    ir.Value
	modified bool
}

// NewArtifact creates a handle for the artifact stored at uri.
// A nil value means the artifact has not been written yet.
func NewArtifact(uri string, custom bool, value ir.Value) *Artifact {
	return &Artifact{uri: uri, custom: custom, value: value}
}

// Path returns the artifact's storage URI. Every call returns the same
// string, backed by the same memory the runner assigned.
func (a *Artifact) Path() string {
	return a.uri
}

// Custom reports whether the URI came from a pipeline-level override.
func (a *Artifact) Custom() bool {
	return a.custom
}

// Value returns the artifact's current contents, or nil if unwritten.
func (a *Artifact) Value() ir.Value {
	return a.value
}

// Set replaces the artifact's contents.
func (a *Artifact) Set(v ir.Value) {
	a.value = v
	a.modified = true
}

// Modified reports whether the handle was written through since it was
// created or last cleared.
func (a *Artifact) Modified() bool {
	return a.modified
}

// ClearModified resets the write flag once the current value is persisted.
func (a *Artifact) ClearModified() {
	a.modified = false
}

// List returns the artifact's contents as a list.
func (a *Artifact) List() (ir.List, error) {
	l, ok := a.value.(ir.List)
	if !ok {
		return nil, &TypeError{URI: a.uri, Want: ir.TypeList, Got: kindName(a.value)}
	}
	return l, nil
}

// Append appends v to the list held by the artifact, in place, and returns
// the updated list.
func (a *Artifact) Append(v ir.Value) (ir.List, error) {
	l, err := a.List()
	if err != nil {
		return nil, err
	}
	l = append(l, v)
	a.Set(l)
	return l, nil
}

func kindName(v ir.Value) string {
	if v == nil {
		return "nothing"
	}
	return ir.KindOf(v)
}
