package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pipekit/internal/ir"
)

// CompileComponent parses a CUE value into a ComponentSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the component struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`component: append_to_list: {
//	    params: {
//	        digit:      int
//	        input_list: {artifact: "output"}
//	    }
//	    returns: [...int]
//	}`)
//	spec, err := CompileComponent(v.LookupPath(cue.ParsePath("component.append_to_list")))
func CompileComponent(v cue.Value) (*ir.ComponentSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ComponentSpec{Params: []ir.ParamSpec{}}

	// Component name is the struct label.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = unquoteLabel(labels[len(labels)-1].String())
	}

	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = desc
	}

	params, err := parseParams(v)
	if err != nil {
		return nil, err
	}
	spec.Params = params

	returnsVal := v.LookupPath(cue.ParsePath("returns"))
	if returnsVal.Exists() {
		ret, err := extractTypeName(returnsVal)
		if err != nil {
			return nil, err
		}
		if ret == ir.TypeArtifact {
			return nil, &CompileError{
				Field:   "returns",
				Message: "a component returns a value; declare an output artifact parameter instead",
				Pos:     returnsVal.Pos(),
			}
		}
		spec.Returns = ret
	}

	return spec, nil
}

// parseParams extracts parameters in declaration order.
//
// A parameter is either a CUE type (`digit: int`) or an artifact marker
// (`input_list: {artifact: "input" | "output"}`).
func parseParams(v cue.Value) ([]ir.ParamSpec, error) {
	params := []ir.ParamSpec{}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return params, nil // params are optional
	}

	iter, err := paramsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		pv := iter.Value()

		artifactVal := pv.LookupPath(cue.ParsePath("artifact"))
		if pv.IncompleteKind() == cue.StructKind && artifactVal.Exists() {
			kind, err := artifactVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if kind != ir.KindInput && kind != ir.KindOutput {
				return nil, &CompileError{
					Field:   fmt.Sprintf("params.%s.artifact", name),
					Message: fmt.Sprintf("artifact kind must be %q or %q, got %q", ir.KindInput, ir.KindOutput, kind),
					Pos:     artifactVal.Pos(),
				}
			}
			params = append(params, ir.ParamSpec{Name: name, Type: ir.TypeArtifact, Kind: kind})
			continue
		}

		typ, err := extractTypeName(pv)
		if err != nil {
			return nil, err
		}
		params = append(params, ir.ParamSpec{Name: name, Type: typ, Kind: ir.KindParameter})
	}

	return params, nil
}

// CompilePipeline parses a CUE value into a PipelineSpec.
//
//	pipeline: "my-pipeline": {
//	    tasks: {
//	        "create-list": {
//	            component: "create_list"
//	            outputs: Output: custom_path: "/data/list"
//	        }
//	        "consume": {
//	            component: "consume"
//	            args: input_list: {task: "create-list", output: "Output"}
//	        }
//	    }
//	    exit_handler: {component: "cleanup"}
//	}
//
// Tasks keep their declaration order.
func CompilePipeline(v cue.Value) (*ir.PipelineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PipelineSpec{Tasks: []ir.TaskSpec{}}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = unquoteLabel(labels[len(labels)-1].String())
	}

	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = desc
	}

	tasksVal := v.LookupPath(cue.ParsePath("tasks"))
	if !tasksVal.Exists() {
		return nil, &CompileError{
			Field:   "tasks",
			Message: "at least one task is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := tasksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		task, err := parseTask(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Tasks = append(spec.Tasks, task)
	}

	exitVal := v.LookupPath(cue.ParsePath("exit_handler"))
	if exitVal.Exists() {
		id := ""
		idVal := exitVal.LookupPath(cue.ParsePath("id"))
		if idVal.Exists() {
			if id, err = idVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		exit, err := parseTask(id, exitVal)
		if err != nil {
			return nil, err
		}
		if exit.ID == "" {
			exit.ID = strings.ReplaceAll(exit.Component, "_", "-")
		}
		spec.ExitHandler = &exit
	}

	return spec, nil
}

func parseTask(id string, v cue.Value) (ir.TaskSpec, error) {
	task := ir.TaskSpec{ID: id}

	compVal := v.LookupPath(cue.ParsePath("component"))
	if !compVal.Exists() {
		return task, &CompileError{
			Field:   fmt.Sprintf("tasks.%s.component", id),
			Message: "component is required",
			Pos:     v.Pos(),
		}
	}
	comp, err := compVal.String()
	if err != nil {
		return task, formatCUEError(err)
	}
	task.Component = comp

	argsVal := v.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() {
		argIter, err := argsVal.Fields()
		if err != nil {
			return task, formatCUEError(err)
		}
		task.Args = make(map[string]ir.ArgSpec)
		for argIter.Next() {
			name := argIter.Label()
			arg, err := parseArg(argIter.Value())
			if err != nil {
				return task, err
			}
			task.Args[name] = arg
		}
	}

	outputsVal := v.LookupPath(cue.ParsePath("outputs"))
	if outputsVal.Exists() {
		outIter, err := outputsVal.Fields()
		if err != nil {
			return task, formatCUEError(err)
		}
		for outIter.Next() {
			name := outIter.Label()
			pathVal := outIter.Value().LookupPath(cue.ParsePath("custom_path"))
			if !pathVal.Exists() {
				continue
			}
			path, err := pathVal.String()
			if err != nil {
				return task, formatCUEError(err)
			}
			if task.OutputPaths == nil {
				task.OutputPaths = make(map[string]string)
			}
			task.OutputPaths[name] = path
		}
	}

	return task, nil
}

// parseArg reads a keyword argument. A struct with a "task" field is a
// reference to an upstream output; anything else is a literal.
func parseArg(v cue.Value) (ir.ArgSpec, error) {
	taskVal := v.LookupPath(cue.ParsePath("task"))
	if v.Kind() == cue.StructKind && taskVal.Exists() {
		task, err := taskVal.String()
		if err != nil {
			return ir.ArgSpec{}, formatCUEError(err)
		}
		output := ir.DefaultOutput
		outVal := v.LookupPath(cue.ParsePath("output"))
		if outVal.Exists() {
			if output, err = outVal.String(); err != nil {
				return ir.ArgSpec{}, formatCUEError(err)
			}
		}
		return ir.Ref(task, output), nil
	}

	val, err := cueToValue(v)
	if err != nil {
		return ir.ArgSpec{}, err
	}
	return ir.Literal(val), nil
}

// cueToValue converts a concrete CUE value into an ir.Value.
func cueToValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		l := ir.List{}
		for iter.Next() {
			elem, err := cueToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			l = append(l, elem)
		}
		return l, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		s := ir.Struct{}
		for iter.Next() {
			elem, err := cueToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			s[iter.Label()] = elem
		}
		return s, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("argument must be a concrete value, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// extractTypeName converts CUE type to IR type string.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.ListKind:
		return ir.TypeList, nil
	case cue.StructKind:
		return ir.TypeStruct, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// unquoteLabel strips the quotes CUE keeps on labels that are not
// identifiers, such as "create-list".
func unquoteLabel(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
