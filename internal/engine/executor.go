package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
)

type artifactKey struct {
	task   string
	output string
}

// artifactState pairs a live handle with the record it is persisted as.
type artifactState struct {
	handle *dsl.Artifact
	record ir.ArtifactRecord
}

// runState holds everything that lives for one run.
// Only the goroutine executing Runner.Run touches it.
type runState struct {
	runner    *Runner
	runID     string
	pipeline  ir.PipelineSpec
	clock     *Clock
	quota     *QuotaEnforcer
	artifacts map[artifactKey]*artifactState
	outcomes  map[string]string
	log       *slog.Logger
}

// execute runs the tasks in order, then the exit handler.
// It returns only errors that stop the run: store failures and
// cancellation.
func (rs *runState) execute(ctx context.Context, order []string) error {
	var stopErr error

	for _, id := range order {
		task, _ := rs.pipeline.Task(id)

		if stopErr == nil {
			stopErr = ctx.Err()
		}
		if stopErr != nil {
			if err := rs.skip(ctx, task, fmt.Sprintf("run stopped: %v", stopErr)); err != nil {
				return err
			}
			continue
		}

		if upstream, ok := rs.failedDependency(task); ok {
			if err := rs.skip(ctx, task, fmt.Sprintf("upstream task %s did not succeed", upstream)); err != nil {
				return err
			}
			continue
		}

		if err := rs.quota.Check(rs.runID); err != nil {
			rs.log.Error("task quota exceeded", "task", task.ID, "limit", rs.quota.MaxTasks())
			stopErr = err
			if err := rs.skip(ctx, task, err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := rs.runTask(ctx, task, false); err != nil {
			return err
		}
	}

	// The exit handler runs whatever happened above, unless the context
	// is gone.
	if h := rs.pipeline.ExitHandler; h != nil {
		if err := ctx.Err(); err != nil {
			if serr := rs.skip(ctx, *h, fmt.Sprintf("run stopped: %v", err)); serr != nil {
				return serr
			}
			return err
		}
		if err := rs.runTask(ctx, *h, true); err != nil {
			return err
		}
	}

	if stopErr != nil && !IsTasksExceededError(stopErr) {
		return stopErr
	}
	return nil
}

// failedDependency returns the first upstream task that did not succeed.
func (rs *runState) failedDependency(task ir.TaskSpec) (string, bool) {
	for _, dep := range task.Dependencies() {
		if rs.outcomes[dep] != ir.OutcomeSucceeded {
			return dep, true
		}
	}
	return "", false
}

// skip records a Skipped completion for a task that never started.
func (rs *runState) skip(ctx context.Context, task ir.TaskSpec, reason string) error {
	seq := rs.clock.Next()
	id, err := ir.TaskCompletionID(rs.runID, task.ID, "", ir.OutcomeSkipped, seq)
	if err != nil {
		return err
	}
	comp := ir.TaskCompletion{
		ID:      id,
		RunID:   rs.runID,
		TaskID:  task.ID,
		Outcome: ir.OutcomeSkipped,
		Error:   reason,
		Seq:     seq,
	}
	if err := rs.runner.store.WriteTaskCompletion(record(ctx), comp); err != nil {
		return err
	}
	rs.outcomes[task.ID] = ir.OutcomeSkipped
	rs.log.Info("task skipped", "task", task.ID, "reason", reason)
	return nil
}

// boundArtifact is an artifact handed to a task through a parameter.
type boundArtifact struct {
	param string
	state *artifactState
}

// runTask binds arguments, records the invocation, calls the component and
// records its artifacts and completion. Component failures are recorded;
// only store errors are returned.
func (rs *runState) runTask(ctx context.Context, task ir.TaskSpec, exitHandler bool) error {
	log := rs.log.With("task", task.ID, "component", task.Component)

	comp, ok := rs.runner.registry.Lookup(task.Component)
	if !ok {
		// Planning rejects unknown components; this guards direct callers
		// that registered after planning.
		return rs.failUnstarted(ctx, task, &RuntimeError{
			Code:    ErrCodeMissingComponent,
			Message: fmt.Sprintf("component %q is not registered", task.Component),
			RunID:   rs.runID,
			TaskID:  task.ID,
		})
	}
	spec := comp.Spec()

	in := dsl.NewInputs(rs.runID, task.ID)
	args := ir.Struct{}
	var dropped []string
	var bound []boundArtifact

	for _, name := range task.ArgNames() {
		arg := task.Args[name]
		param, ok := spec.Param(name)
		if !ok {
			dropped = append(dropped, name)
			log.Warn("argument matches no parameter, dropped", "argument", name)
			continue
		}

		if !arg.IsRef() {
			in.SetParam(name, arg.Value)
			args[name] = arg.Value
			continue
		}

		st, ok := rs.artifacts[artifactKey{arg.Task, arg.Output}]
		if !ok {
			return rs.failUnstarted(ctx, task, &RuntimeError{
				Code:    ErrCodeUnboundParameter,
				Message: fmt.Sprintf("parameter %q: task %s produced no %s artifact", param.Name, arg.Task, arg.Output),
				RunID:   rs.runID,
				TaskID:  task.ID,
			})
		}
		in.SetArtifact(name, st.handle)
		args[name] = ir.String(st.handle.Path())
		bound = append(bound, boundArtifact{param: name, state: st})
	}

	var allocated []*artifactState
	for _, param := range spec.Params {
		if _, ok := task.Args[param.Name]; ok {
			continue
		}
		switch {
		case exitHandler && param.Name == ir.ParentRunIDParam:
			v := ir.String(rs.runID)
			in.SetParam(param.Name, v)
			args[param.Name] = v

		case param.Kind == ir.KindParameter:
			v := zeroValue(param.Type)
			in.SetParam(param.Name, v)
			args[param.Name] = v
			log.Warn("parameter unbound, using zero value", "parameter", param.Name, "type", param.Type)

		case param.Kind == ir.KindOutput:
			st := rs.allocate(task, param.Name, nil)
			in.SetArtifact(param.Name, st.handle)
			args[param.Name] = ir.String(st.handle.Path())
			allocated = append(allocated, st)

		default:
			return rs.failUnstarted(ctx, task, &RuntimeError{
				Code:    ErrCodeUnboundParameter,
				Message: fmt.Sprintf("input artifact %q is not bound", param.Name),
				RunID:   rs.runID,
				TaskID:  task.ID,
			})
		}
	}

	seq := rs.clock.Next()
	invID, err := ir.TaskInvocationID(rs.runID, task.ID, args, seq)
	if err != nil {
		return err
	}
	inv := ir.TaskInvocation{
		ID:        invID,
		RunID:     rs.runID,
		TaskID:    task.ID,
		Component: task.Component,
		Args:      args,
		Dropped:   dropped,
		Seq:       seq,
	}
	if err := rs.runner.store.WriteTaskInvocation(record(ctx), inv); err != nil {
		return err
	}
	log.Debug("task started", "invocation_id", invID, "seq", seq)

	for _, b := range bound {
		read := ir.ArtifactRead{
			InvocationID: invID,
			ArtifactID:   b.state.record.ID,
			Param:        b.param,
			URI:          b.state.handle.Path(),
			Seq:          rs.clock.Next(),
		}
		if err := rs.runner.store.WriteArtifactRead(record(ctx), read); err != nil {
			return err
		}
		log.Debug("artifact handed over", "parameter", b.param, "uri", read.URI)
	}

	result, callErr := call(ctx, comp, in)

	// Handles may have been mutated even if the component then failed.
	for _, st := range allocated {
		if err := rs.persist(ctx, st); err != nil {
			return err
		}
	}
	for _, b := range bound {
		if b.state.handle.Modified() {
			if err := rs.persist(ctx, b.state); err != nil {
				return err
			}
		}
	}

	outcome := ir.OutcomeSucceeded
	var errMsg string
	if callErr != nil {
		outcome = ir.OutcomeFailed
		errMsg = callErr.Error()
		log.Error("component returned an error", "code", ErrCodeComponentFailed, "error", callErr)
	} else if err := rs.recordOutput(ctx, task, spec, result, log); err != nil {
		var re *RuntimeError
		if !errors.As(err, &re) {
			return err
		}
		outcome = ir.OutcomeFailed
		errMsg = re.Message
	}

	cseq := rs.clock.Next()
	compID, err := ir.TaskCompletionID(rs.runID, task.ID, invID, outcome, cseq)
	if err != nil {
		return err
	}
	completion := ir.TaskCompletion{
		ID:           compID,
		InvocationID: invID,
		RunID:        rs.runID,
		TaskID:       task.ID,
		Outcome:      outcome,
		Result:       result,
		Error:        errMsg,
		Seq:          cseq,
	}
	if outcome == ir.OutcomeFailed {
		completion.Result = nil
	}
	if err := rs.runner.store.WriteTaskCompletion(record(ctx), completion); err != nil {
		return err
	}
	rs.outcomes[task.ID] = outcome

	if outcome == ir.OutcomeFailed {
		log.Error("task failed", "outcome", outcome, "error", errMsg)
	} else {
		log.Info("task completed", "outcome", outcome)
	}
	return nil
}

// recordOutput turns a component's return value into its Output artifact.
// A declared return that produced nothing is logged and leaves no artifact.
func (rs *runState) recordOutput(ctx context.Context, task ir.TaskSpec, spec ir.ComponentSpec, result ir.Value, log *slog.Logger) error {
	if spec.Returns == "" {
		if result != nil {
			log.Warn("component declares no return value but returned one; ignored")
		}
		return nil
	}
	if result == nil {
		log.Warn("component declared a return value but produced none; no Output artifact recorded",
			"returns", spec.Returns)
		return nil
	}
	if got := ir.KindOf(result); got != spec.Returns {
		return &RuntimeError{
			Code:    ErrCodeInvalidBinding,
			Message: fmt.Sprintf("component returned %s, declared %s", got, spec.Returns),
			RunID:   rs.runID,
			TaskID:  task.ID,
		}
	}
	return rs.persist(ctx, rs.allocate(task, ir.DefaultOutput, result))
}

// allocate creates the handle for a task output, honoring a custom path.
func (rs *runState) allocate(task ir.TaskSpec, output string, value ir.Value) *artifactState {
	uri, custom := task.OutputPaths[output]
	if !custom {
		uri = DefaultArtifactURI(rs.runner.pipelineRoot, rs.runID, task.ID, output)
	}
	st := &artifactState{
		handle: dsl.NewArtifact(uri, custom, value),
		record: ir.ArtifactRecord{
			ID:     ir.ArtifactID(rs.runID, task.ID, output),
			RunID:  rs.runID,
			TaskID: task.ID,
			Output: output,
			URI:    uri,
			Custom: custom,
		},
	}
	rs.artifacts[artifactKey{task.ID, output}] = st
	return st
}

// persist writes the handle's current value under the artifact's ID.
func (rs *runState) persist(ctx context.Context, st *artifactState) error {
	st.record.Value = st.handle.Value()
	st.record.Seq = rs.clock.Next()
	if err := rs.runner.store.WriteArtifact(record(ctx), st.record); err != nil {
		return err
	}
	st.handle.ClearModified()
	rs.log.Debug("artifact recorded",
		"task", st.record.TaskID,
		"output", st.record.Output,
		"uri", st.record.URI,
		"custom", st.record.Custom,
	)
	return nil
}

// failUnstarted records a task that could not be bound. It gets an
// invocation with whatever could be resolved so the trace shows the
// attempt, and a Failed completion.
func (rs *runState) failUnstarted(ctx context.Context, task ir.TaskSpec, cause *RuntimeError) error {
	seq := rs.clock.Next()
	invID, err := ir.TaskInvocationID(rs.runID, task.ID, ir.Struct{}, seq)
	if err != nil {
		return err
	}
	inv := ir.TaskInvocation{
		ID:        invID,
		RunID:     rs.runID,
		TaskID:    task.ID,
		Component: task.Component,
		Args:      ir.Struct{},
		Seq:       seq,
	}
	if err := rs.runner.store.WriteTaskInvocation(record(ctx), inv); err != nil {
		return err
	}

	cseq := rs.clock.Next()
	compID, err := ir.TaskCompletionID(rs.runID, task.ID, invID, ir.OutcomeFailed, cseq)
	if err != nil {
		return err
	}
	comp := ir.TaskCompletion{
		ID:           compID,
		InvocationID: invID,
		RunID:        rs.runID,
		TaskID:       task.ID,
		Outcome:      ir.OutcomeFailed,
		Error:        cause.Error(),
		Seq:          cseq,
	}
	if err := rs.runner.store.WriteTaskCompletion(record(ctx), comp); err != nil {
		return err
	}
	rs.outcomes[task.ID] = ir.OutcomeFailed
	rs.log.Error("task could not start", "task", task.ID, "code", cause.Code, "error", cause.Message)
	return nil
}

// call invokes the component, converting a panic into an error.
func call(ctx context.Context, comp dsl.Component, in *dsl.Inputs) (result ir.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("component %s panicked: %v", comp.Name, p)
		}
	}()
	return comp.Fn(ctx, in)
}

// record detaches store writes from cancellation. Cancelling a run stops
// new tasks from starting; what already happened is still written down.
func record(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// zeroValue returns the value an unbound parameter of type t receives.
func zeroValue(t string) ir.Value {
	switch t {
	case ir.TypeInt:
		return ir.Int(0)
	case ir.TypeBool:
		return ir.Bool(false)
	case ir.TypeList:
		return ir.List{}
	case ir.TypeStruct:
		return ir.Struct{}
	default:
		return ir.String("")
	}
}
