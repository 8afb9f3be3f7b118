package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/pipekit/internal/compiler"
	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
)

// DefaultPipelineRoot is where artifacts without a custom path are placed.
const DefaultPipelineRoot = "/tmp/pipekit"

// Runner executes pipelines locally against a run log.
//
// Tasks run one at a time on the caller's goroutine in topological order,
// ties broken by declaration order. The runner is the only writer to the
// store for the duration of a run.
//
// A failing component does not abort the run. Its task is recorded as
// Failed, every task downstream of it as Skipped, the exit handler still
// runs, and the run ends Failed.
type Runner struct {
	store    *store.Store
	registry *dsl.Registry
	clock    *Clock
	runIDs   RunIDGenerator
	logger   *slog.Logger

	pipelineRoot string
	strict       bool
	maxTasks     int
}

// Option configures a Runner.
type Option func(*Runner)

// WithPipelineRoot sets the root under which default artifact URIs are
// allocated. Default: DefaultPipelineRoot.
func WithPipelineRoot(root string) Option {
	return func(r *Runner) {
		r.pipelineRoot = root
	}
}

// WithStrictBindings makes binding warnings (unknown keyword, unbound
// parameter, literal type mismatch) fail the run before it starts.
func WithStrictBindings(strict bool) Option {
	return func(r *Runner) {
		r.strict = strict
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithClock sets the logical clock. By default each run resumes from the
// highest seq already in the store.
func WithClock(c *Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithRunIDGenerator sets the source of run IDs used when Run is called
// without one. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.runIDs = g
	}
}

// WithMaxTasks sets the task execution quota per run.
// Default: DefaultMaxTasks.
func WithMaxTasks(n int) Option {
	return func(r *Runner) {
		r.maxTasks = n
	}
}

// New creates a Runner that executes components from reg and records runs
// in s.
func New(s *store.Store, reg *dsl.Registry, opts ...Option) *Runner {
	r := &Runner{
		store:        s,
		registry:     reg,
		runIDs:       UUIDv7Generator{},
		logger:       slog.Default(),
		pipelineRoot: DefaultPipelineRoot,
		maxTasks:     DefaultMaxTasks,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Status   string
	Outcomes map[string]string // task ID -> outcome, exit handler included
	Warnings []compiler.ValidationError
}

// Failed reports whether the run ended Failed.
func (res *Result) Failed() bool {
	return res.Status == ir.RunFailed
}

// DefaultArtifactURI returns the system-assigned URI of a task output:
// <root>/<run>/<task>/<output>.
func DefaultArtifactURI(root, runID, taskID, output string) string {
	return strings.TrimRight(root, "/") + "/" + runID + "/" + taskID + "/" + output
}

// Run executes p and records it under runID, generating an ID when runID
// is empty.
//
// The returned error covers problems that prevent the run from being
// planned or recorded: an invalid pipeline (a *RuntimeError), a store
// failure, or context cancellation. Component failures are not errors;
// they show up in Result.Status and Result.Outcomes.
func (r *Runner) Run(ctx context.Context, p ir.PipelineSpec, runID string) (*Result, error) {
	warnings, err := r.plan(p)
	if err != nil {
		return nil, err
	}
	order, err := compiler.TopoOrder(p)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeCycleDetected, Message: err.Error(), Err: err}
	}

	pipelineHash, err := ir.PipelineHash(p)
	if err != nil {
		return nil, fmt.Errorf("hash pipeline %s: %w", p.Name, err)
	}

	if runID == "" {
		runID = r.runIDs.Generate()
	}

	clock := r.clock
	if clock == nil {
		last, err := r.store.GetLastSeq(ctx)
		if err != nil {
			return nil, err
		}
		clock = NewClockAt(last)
	}

	rs := &runState{
		runner:    r,
		runID:     runID,
		pipeline:  p,
		clock:     clock,
		quota:     NewQuotaEnforcer(r.maxTasks),
		artifacts: make(map[artifactKey]*artifactState),
		outcomes:  make(map[string]string),
		log:       r.logger.With("run_id", runID, "pipeline", p.Name),
	}

	run := ir.Run{
		ID:            runID,
		Pipeline:      p.Name,
		PipelineHash:  pipelineHash,
		PipelineRoot:  r.pipelineRoot,
		Status:        ir.RunRunning,
		StartSeq:      clock.Next(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := r.store.WriteRun(ctx, run); err != nil {
		return nil, err
	}
	rs.log.Info("run started", "tasks", len(order), "pipeline_root", r.pipelineRoot)

	runErr := rs.execute(ctx, order)

	status := ir.RunSucceeded
	for _, outcome := range rs.outcomes {
		if outcome != ir.OutcomeSucceeded {
			status = ir.RunFailed
		}
	}
	if runErr != nil {
		status = ir.RunFailed
	}

	// Record the terminal status even when the context is done.
	if err := r.store.FinishRun(record(ctx), runID, status, clock.Next()); err != nil {
		return nil, errors.Join(runErr, err)
	}
	rs.log.Info("run finished", "status", status)

	res := &Result{
		RunID:    runID,
		Status:   status,
		Outcomes: rs.outcomes,
		Warnings: warnings,
	}
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// plan validates p against the registered components and returns the
// binding warnings that do not block execution.
func (r *Runner) plan(p ir.PipelineSpec) ([]compiler.ValidationError, error) {
	components := make(map[string]ir.ComponentSpec)
	for _, spec := range r.registry.Specs() {
		components[spec.Name] = spec
	}

	diags := compiler.ValidatePipeline(p, components)
	failing := compiler.Failing(diags, r.strict)
	if len(failing) > 0 {
		errs := make([]error, len(failing))
		for i, d := range failing {
			errs[i] = d
		}
		first := failing[0]
		return nil, &RuntimeError{
			Code:    planErrorCode(first.Code),
			Message: fmt.Sprintf("pipeline %s: %s", p.Name, first.Message),
			Err:     errors.Join(errs...),
		}
	}

	var warnings []compiler.ValidationError
	for _, d := range diags {
		if d.IsWarning() {
			warnings = append(warnings, d)
			r.logger.Warn("binding diagnostic",
				"pipeline", p.Name,
				"code", d.Code,
				"field", d.Field,
				"message", d.Message,
			)
		}
	}
	return warnings, nil
}

func planErrorCode(code string) RuntimeErrorCode {
	switch code {
	case compiler.ErrUnknownComponent:
		return ErrCodeMissingComponent
	case compiler.ErrCycleDetected:
		return ErrCodeCycleDetected
	case compiler.ErrInvalidBinding, compiler.WarnUnknownArgument,
		compiler.WarnUnboundParam, compiler.WarnTypeMismatch:
		return ErrCodeInvalidBinding
	default:
		return ErrCodeInvalidPipeline
	}
}
