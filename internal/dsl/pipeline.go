package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pipekit/internal/ir"
)

// Pipeline records task invocations for later compilation to an
// ir.PipelineSpec. Errors are collected and reported by Build.
type Pipeline struct {
	name        string
	description string
	tasks       []*TaskHandle
	exit        *TaskHandle
	ids         map[string]int
	errs        []error
}

// NewPipeline starts a pipeline definition.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name, ids: make(map[string]int)}
}

// Describe sets the pipeline description.
func (p *Pipeline) Describe(description string) *Pipeline {
	p.description = description
	return p
}

// Arg is one keyword argument at a task call site.
type Arg struct {
	name  string
	value any
}

// Kw binds a keyword argument. The value may be an *OutputHandle (an
// upstream artifact), an ir.Value, or plain Go data accepted by ir.FromGo.
// The keyword is recorded as written; it is not checked against the
// component's parameters here.
func Kw(name string, value any) Arg {
	return Arg{name: name, value: value}
}

// Task adds an invocation of component to the pipeline. Task IDs are
// derived from the component name, with "_" replaced by "-" and a numeric
// suffix when the same component is used more than once.
func (p *Pipeline) Task(component string, args ...Arg) *TaskHandle {
	t := p.newTask(component, args)
	p.tasks = append(p.tasks, t)
	return t
}

// ExitHandler sets the task that runs after every other task, whatever
// their outcome.
func (p *Pipeline) ExitHandler(component string, args ...Arg) *TaskHandle {
	if p.exit != nil {
		p.errs = append(p.errs, fmt.Errorf("exit handler already set to %q", p.exit.id))
	}
	t := p.newTask(component, args)
	p.exit = t
	return t
}

func (p *Pipeline) newTask(component string, args []Arg) *TaskHandle {
	base := strings.ReplaceAll(component, "_", "-")
	p.ids[base]++
	id := base
	if n := p.ids[base]; n > 1 {
		id = fmt.Sprintf("%s-%d", base, n)
	}

	t := &TaskHandle{
		pipeline:  p,
		id:        id,
		component: component,
		args:      make(map[string]ir.ArgSpec, len(args)),
		paths:     make(map[string]string),
	}
	for _, a := range args {
		if _, dup := t.args[a.name]; dup {
			p.errs = append(p.errs, fmt.Errorf("task %q: duplicate argument %q", id, a.name))
			continue
		}
		spec, err := p.argSpec(a.value)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("task %q: argument %q: %w", id, a.name, err))
			continue
		}
		t.args[a.name] = spec
	}
	return t
}

func (p *Pipeline) argSpec(value any) (ir.ArgSpec, error) {
	if out, ok := value.(*OutputHandle); ok {
		if out.task.pipeline != p {
			return ir.ArgSpec{}, fmt.Errorf("output of task %q belongs to another pipeline", out.task.id)
		}
		return ir.Ref(out.task.id, out.name), nil
	}
	v, err := ir.FromGo(value)
	if err != nil {
		return ir.ArgSpec{}, err
	}
	return ir.Literal(v), nil
}

// Build compiles the recorded definition. Structural checks against
// component declarations are left to the compiler.
func (p *Pipeline) Build() (ir.PipelineSpec, error) {
	if p.name == "" {
		p.errs = append(p.errs, fmt.Errorf("pipeline name is required"))
	}
	if err := errors.Join(p.errs...); err != nil {
		return ir.PipelineSpec{}, fmt.Errorf("pipeline %q: %w", p.name, err)
	}

	spec := ir.PipelineSpec{
		Name:        p.name,
		Description: p.description,
		Tasks:       make([]ir.TaskSpec, 0, len(p.tasks)),
	}
	for _, t := range p.tasks {
		spec.Tasks = append(spec.Tasks, t.spec())
	}
	if p.exit != nil {
		exit := p.exit.spec()
		spec.ExitHandler = &exit
	}
	return spec, nil
}

// TaskHandle refers to one task in a pipeline under construction.
type TaskHandle struct {
	pipeline  *Pipeline
	id        string
	component string
	args      map[string]ir.ArgSpec
	paths     map[string]string
}

// ID returns the task's ID within the pipeline.
func (t *TaskHandle) ID() string {
	return t.id
}

// Output returns the task's default output.
func (t *TaskHandle) Output() *OutputHandle {
	return t.OutputNamed(ir.DefaultOutput)
}

// OutputNamed returns a named output of the task.
func (t *TaskHandle) OutputNamed(name string) *OutputHandle {
	return &OutputHandle{task: t, name: name}
}

func (t *TaskHandle) spec() ir.TaskSpec {
	spec := ir.TaskSpec{ID: t.id, Component: t.component}
	if len(t.args) > 0 {
		spec.Args = make(map[string]ir.ArgSpec, len(t.args))
		for k, v := range t.args {
			spec.Args[k] = v
		}
	}
	if len(t.paths) > 0 {
		spec.OutputPaths = make(map[string]string, len(t.paths))
		for k, v := range t.paths {
			spec.OutputPaths[k] = v
		}
	}
	return spec
}

// OutputHandle refers to an output artifact of a task.
type OutputHandle struct {
	task *TaskHandle
	name string
}

// Task returns the ID of the producing task.
func (o *OutputHandle) Task() string {
	return o.task.id
}

// Name returns the output name.
func (o *OutputHandle) Name() string {
	return o.name
}

// SetCustomPath overrides the URI the artifact is stored at. The runner
// uses the path exactly as given.
func (o *OutputHandle) SetCustomPath(path string) *OutputHandle {
	o.task.paths[o.name] = path
	return o
}
