package compiler

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/roach88/pipekit/internal/ir"
)

// Validation codes. E-codes are errors; W-codes are binding diagnostics
// that only fail compilation in strict mode.
const (
	// ComponentSpec errors (E101-E109)
	ErrComponentNameEmpty = "E101" // component name is required
	ErrDuplicateName      = "E102" // duplicate component, parameter, pipeline or task name
	ErrInvalidFieldType   = "E103" // invalid type string
	ErrInvalidParamKind   = "E104" // invalid parameter kind
	ErrFloatTypeForbidden = "E105" // float types not allowed

	// PipelineSpec errors (E110-E119)
	ErrPipelineNoTasks      = "E110" // at least one task required
	ErrUnknownComponent     = "E111" // task names a component that is not declared
	ErrUnknownTaskRef       = "E112" // argument references an unknown task
	ErrUnknownOutput        = "E113" // argument references an output the task does not produce
	ErrInvalidCustomPath    = "E114" // custom path is empty or relative
	ErrDuplicateCustomPath  = "E115" // two outputs share a custom path
	ErrCustomPathUnknownOut = "E116" // custom path set for an output the task does not produce
	ErrExitHandlerReference = "E117" // exit handler references or is referenced by a task
	ErrInvalidTaskID        = "E118" // task ID is empty

	// Graph and binding errors (E120-E129)
	ErrCycleDetected  = "E120" // tasks depend on each other
	ErrInvalidBinding = "E121" // artifact parameter bound to a literal or value parameter bound to an artifact

	// Binding warnings (W130-W139)
	WarnUnknownArgument = "W130" // keyword argument matches no parameter
	WarnUnboundParam    = "W131" // parameter has no argument
	WarnTypeMismatch    = "W132" // literal type differs from parameter type
)

// ValidationError represents a schema validation error or binding warning.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsWarning reports whether the diagnostic is a binding warning.
func (e ValidationError) IsWarning() bool {
	return strings.HasPrefix(e.Code, "W")
}

// Failing returns the diagnostics that fail compilation. In strict mode
// warnings fail too.
func Failing(diags []ValidationError, strict bool) []ValidationError {
	var out []ValidationError
	for _, d := range diags {
		if strict || !d.IsWarning() {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks components and pipelines together. It returns every
// error and warning found (does not fail-fast).
func Validate(components []ir.ComponentSpec, pipelines []ir.PipelineSpec) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]ir.ComponentSpec, len(components))
	for i, c := range components {
		errs = append(errs, ValidateComponent(c, fmt.Sprintf("components[%d]", i))...)
		if _, dup := byName[c.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("components[%d].name", i),
				Message: fmt.Sprintf("duplicate component name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		byName[c.Name] = c
	}

	seen := make(map[string]bool, len(pipelines))
	for i, p := range pipelines {
		if seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipelines[%d].name", i),
				Message: fmt.Sprintf("duplicate pipeline name: %q", p.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[p.Name] = true
		errs = append(errs, ValidatePipeline(p, byName)...)
	}

	return errs
}

// ValidateComponent validates a single component declaration. The prefix
// is used in Field paths.
func ValidateComponent(c ir.ComponentSpec, prefix string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".name",
			Message: "component name is required",
			Code:    ErrComponentNameEmpty,
		})
	}

	if c.Returns != "" {
		errs = append(errs, validateFieldType(c.Returns, prefix+".returns", "returns")...)
	}

	names := make(map[string]bool, len(c.Params))
	for i, p := range c.Params {
		field := fmt.Sprintf("%s.params[%d]", prefix, i)
		if names[p.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate parameter name: %q", p.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[p.Name] = true

		errs = append(errs, validateFieldType(p.Type, field+".type", p.Name)...)

		if !ir.ValidKinds[p.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid kind %q for parameter %q", p.Kind, p.Name),
				Code:    ErrInvalidParamKind,
			})
		} else if p.IsArtifact() != (p.Type == ir.TypeArtifact) {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("parameter %q: kind %q does not match type %q", p.Name, p.Kind, p.Type),
				Code:    ErrInvalidParamKind,
			})
		}
	}

	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	var errs []ValidationError

	if !ir.ValidTypes[fieldType] {
		errs = append(errs, ValidationError{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		})
	}

	if isFloatType(fieldType) {
		errs = append(errs, ValidationError{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		})
	}

	return errs
}

// ValidatePipeline checks a pipeline against the declared components:
// structure, references, custom paths, cycles and argument bindings.
func ValidatePipeline(p ir.PipelineSpec, components map[string]ir.ComponentSpec) []ValidationError {
	var errs []ValidationError
	prefix := fmt.Sprintf("pipeline.%s", p.Name)

	if len(p.Tasks) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".tasks",
			Message: "at least one task is required",
			Code:    ErrPipelineNoTasks,
		})
	}

	tasks := make(map[string]ir.TaskSpec, len(p.Tasks))
	for _, t := range allTasks(p) {
		field := taskField(p, t)
		if strings.TrimSpace(t.ID) == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "task ID is required",
				Code:    ErrInvalidTaskID,
			})
			continue
		}
		if _, dup := tasks[t.ID]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate task ID: %q", t.ID),
				Code:    ErrDuplicateName,
			})
			continue
		}
		tasks[t.ID] = t

		if _, ok := components[t.Component]; !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".component",
				Message: fmt.Sprintf("unknown component %q", t.Component),
				Code:    ErrUnknownComponent,
			})
		}
	}

	isExit := func(id string) bool {
		return p.ExitHandler != nil && p.ExitHandler.ID == id
	}

	for _, t := range allTasks(p) {
		field := taskField(p, t)
		for _, name := range t.ArgNames() {
			arg := t.Args[name]
			if !arg.IsRef() {
				continue
			}
			argField := fmt.Sprintf("%s.args.%s", field, name)

			if isExit(t.ID) || isExit(arg.Task) {
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: "the exit handler cannot exchange artifacts with other tasks",
					Code:    ErrExitHandlerReference,
				})
				continue
			}
			upstream, ok := tasks[arg.Task]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("reference to unknown task %q", arg.Task),
					Code:    ErrUnknownTaskRef,
				})
				continue
			}
			comp, ok := components[upstream.Component]
			if !ok {
				continue // already reported
			}
			if !producesOutput(comp, arg.Output) {
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("task %q does not produce output %q", arg.Task, arg.Output),
					Code:    ErrUnknownOutput,
				})
			}
		}

		comp, known := components[t.Component]
		for _, out := range sortedKeys(t.OutputPaths) {
			uri := t.OutputPaths[out]
			pathField := fmt.Sprintf("%s.outputs.%s.custom_path", field, out)
			if known && !producesOutput(comp, out) {
				errs = append(errs, ValidationError{
					Field:   pathField,
					Message: fmt.Sprintf("component %q does not produce output %q", t.Component, out),
					Code:    ErrCustomPathUnknownOut,
				})
			}
			if uri == "" || (!strings.Contains(uri, "://") && !path.IsAbs(uri)) {
				errs = append(errs, ValidationError{
					Field:   pathField,
					Message: fmt.Sprintf("custom path %q must be absolute or a URI", uri),
					Code:    ErrInvalidCustomPath,
				})
			}
		}
	}

	errs = append(errs, validateUniquePaths(p)...)

	for _, c := range AnalyzeCycles(p) {
		errs = append(errs, ValidationError{
			Field:   prefix + ".tasks",
			Message: c.Message,
			Code:    ErrCycleDetected,
		})
	}

	errs = append(errs, CheckBindings(p, components)...)
	return errs
}

// validateUniquePaths reports custom paths used by more than one output.
func validateUniquePaths(p ir.PipelineSpec) []ValidationError {
	var errs []ValidationError
	owner := make(map[string]string)
	for _, t := range allTasks(p) {
		for _, out := range sortedKeys(t.OutputPaths) {
			uri := t.OutputPaths[out]
			key := t.ID + "." + out
			if prev, dup := owner[uri]; dup {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.outputs.%s.custom_path", taskField(p, t), out),
					Message: fmt.Sprintf("custom path %q is already used by %s", uri, prev),
					Code:    ErrDuplicateCustomPath,
				})
				continue
			}
			owner[uri] = key
		}
	}
	return errs
}

// CheckBindings compares each task's keyword arguments with its component's
// parameters. Mismatched keywords and unbound parameters are warnings: the
// call site is kept as written and the runner decides what to bind.
// Binding an artifact parameter to a literal (or the reverse) is an error.
func CheckBindings(p ir.PipelineSpec, components map[string]ir.ComponentSpec) []ValidationError {
	var errs []ValidationError

	for _, t := range allTasks(p) {
		comp, ok := components[t.Component]
		if !ok {
			continue
		}
		field := taskField(p, t)
		exit := p.ExitHandler != nil && p.ExitHandler.ID == t.ID

		for _, name := range t.ArgNames() {
			arg := t.Args[name]
			argField := fmt.Sprintf("%s.args.%s", field, name)

			param, ok := comp.Param(name)
			if !ok {
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("component %q has no parameter %q; the argument will be dropped", comp.Name, name),
					Code:    WarnUnknownArgument,
				})
				continue
			}

			switch {
			case param.IsArtifact() && !arg.IsRef():
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("artifact parameter %q must reference a task output", name),
					Code:    ErrInvalidBinding,
				})
			case !param.IsArtifact() && arg.IsRef():
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("parameter %q of type %s cannot take an artifact", name, param.Type),
					Code:    ErrInvalidBinding,
				})
			case !arg.IsRef() && arg.Value != nil && ir.KindOf(arg.Value) != param.Type:
				errs = append(errs, ValidationError{
					Field:   argField,
					Message: fmt.Sprintf("parameter %q is %s but the argument is %s", name, param.Type, ir.KindOf(arg.Value)),
					Code:    WarnTypeMismatch,
				})
			}
		}

		for _, param := range comp.Params {
			if _, bound := t.Args[param.Name]; bound {
				continue
			}
			if exit && param.Name == ir.ParentRunIDParam {
				continue // supplied by the runner
			}
			msg := fmt.Sprintf("parameter %q has no argument", param.Name)
			switch {
			case param.Kind == ir.KindOutput:
				// The runner allocates a fresh artifact.
				continue
			case param.Kind == ir.KindInput:
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.args.%s", field, param.Name),
					Message: msg,
					Code:    ErrInvalidBinding,
				})
				continue
			default:
				msg += fmt.Sprintf("; it will be bound to the zero %s", param.Type)
			}
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.args.%s", field, param.Name),
				Message: msg,
				Code:    WarnUnboundParam,
			})
		}
	}

	return errs
}

// producesOutput reports whether a component produces the named output:
// the default output when it has a return type, or any output-kind
// artifact parameter.
func producesOutput(c ir.ComponentSpec, name string) bool {
	if name == ir.DefaultOutput && c.Returns != "" {
		return true
	}
	p, ok := c.Param(name)
	return ok && p.Kind == ir.KindOutput
}

func allTasks(p ir.PipelineSpec) []ir.TaskSpec {
	if p.ExitHandler == nil {
		return p.Tasks
	}
	tasks := make([]ir.TaskSpec, 0, len(p.Tasks)+1)
	tasks = append(tasks, p.Tasks...)
	return append(tasks, *p.ExitHandler)
}

func taskField(p ir.PipelineSpec, t ir.TaskSpec) string {
	if p.ExitHandler != nil && p.ExitHandler.ID == t.ID && p.ExitHandler.Component == t.Component {
		return fmt.Sprintf("pipeline.%s.exit_handler", p.Name)
	}
	return fmt.Sprintf("pipeline.%s.tasks.%s", p.Name, t.ID)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
