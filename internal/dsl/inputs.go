package dsl

import (
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

// Inputs carries the resolved arguments of one task invocation.
type Inputs struct {
	RunID  string
	TaskID string

	params    map[string]ir.Value
	artifacts map[string]*Artifact
}

// NewInputs creates an empty argument set for a task.
func NewInputs(runID, taskID string) *Inputs {
	return &Inputs{
		RunID:     runID,
		TaskID:    taskID,
		params:    make(map[string]ir.Value),
		artifacts: make(map[string]*Artifact),
	}
}

// SetParam binds a value parameter.
func (in *Inputs) SetParam(name string, v ir.Value) {
	in.params[name] = v
}

// SetArtifact binds an artifact parameter.
func (in *Inputs) SetArtifact(name string, a *Artifact) {
	in.artifacts[name] = a
}

// Param returns the raw value bound to name.
func (in *Inputs) Param(name string) (ir.Value, bool) {
	v, ok := in.params[name]
	return v, ok
}

// String returns a string parameter. The returned string shares memory with
// the bound value.
func (in *Inputs) String(name string) (string, error) {
	v, err := in.lookup(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", fmt.Errorf("parameter %q is %s, want string", name, ir.KindOf(v))
	}
	return string(s), nil
}

// Int returns an int parameter.
func (in *Inputs) Int(name string) (int64, error) {
	v, err := in.lookup(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, fmt.Errorf("parameter %q is %s, want int", name, ir.KindOf(v))
	}
	return int64(n), nil
}

// Bool returns a bool parameter.
func (in *Inputs) Bool(name string) (bool, error) {
	v, err := in.lookup(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(ir.Bool)
	if !ok {
		return false, fmt.Errorf("parameter %q is %s, want bool", name, ir.KindOf(v))
	}
	return bool(b), nil
}

// Artifact returns the handle bound to an artifact parameter.
func (in *Inputs) Artifact(name string) (*Artifact, error) {
	a, ok := in.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("artifact parameter %q is not bound", name)
	}
	return a, nil
}

func (in *Inputs) lookup(name string) (ir.Value, error) {
	v, ok := in.params[name]
	if !ok {
		return nil, fmt.Errorf("parameter %q is not bound", name)
	}
	return v, nil
}
