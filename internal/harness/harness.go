package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pipekit/internal/compiler"
	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/engine"
	"github.com/roach88/pipekit/internal/ir"
	"github.com/roach88/pipekit/internal/store"
	"github.com/roach88/pipekit/internal/testutil"
)

// DefaultConcurrency bounds how many scenarios RunAll executes at once.
const DefaultConcurrency = 4

// Harness executes scenarios with the components of one registry.
type Harness struct {
	registry    *dsl.Registry
	logger      *slog.Logger
	concurrency int
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the runner. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithConcurrency sets how many scenarios RunAll executes at once.
func WithConcurrency(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.concurrency = n
		}
	}
}

// New creates a harness that runs pipelines with the components in reg.
func New(reg *dsl.Registry, opts ...Option) *Harness {
	h := &Harness{
		registry:    reg,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Run IDs are fixed by
// the scenario or generated from its name, and the clock starts at zero, so
// the same scenario always produces the same trace.
//
// The returned error covers problems with the scenario itself (specs that
// do not load, a missing pipeline, declarations that disagree with the
// registry) and store failures. Expectations that do not hold are reported
// in Result.Errors.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	loaded, errs := compiler.LoadSpecs(scenario.Specs, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("scenario %s: load specs: %w", scenario.Name, errors.Join(errs...))
	}
	if err := h.checkDeclarations(loaded.Components); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	pipeline, ok := loaded.Pipeline(scenario.Pipeline)
	if !ok {
		return nil, fmt.Errorf("scenario %s: pipeline %q not found in %s (have %s)",
			scenario.Name, scenario.Pipeline, scenario.Specs, strings.Join(loaded.PipelineNames(), ", "))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := []engine.Option{
		engine.WithLogger(h.logger.With("scenario", scenario.Name)),
		engine.WithStrictBindings(scenario.Strict),
		engine.WithRunIDGenerator(testutil.NewSequentialRunIDs(scenario.Name)),
	}
	if scenario.PipelineRoot != "" {
		opts = append(opts, engine.WithPipelineRoot(scenario.PipelineRoot))
	}
	runner := engine.New(st, h.registry, opts...)

	result := NewResult(scenario.Name)
	res, runErr := runner.Run(ctx, pipeline, scenario.RunID)

	var rejected *engine.RuntimeError
	switch {
	case runErr == nil:
	case errors.As(runErr, &rejected) && res == nil:
		result.ErrorCode = string(rejected.Code)
	default:
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, runErr)
	}

	if scenario.ExpectError != "" && result.ErrorCode != scenario.ExpectError {
		actual := "run was accepted"
		if result.ErrorCode != "" {
			actual = fmt.Sprintf("rejected with %s: %v", result.ErrorCode, runErr)
		}
		result.AddError((&AssertionError{
			Type:     "expect_error",
			Expected: "run rejected with " + scenario.ExpectError,
			Actual:   actual,
		}).Error())
	}
	if scenario.ExpectError == "" && result.ErrorCode != "" {
		result.AddError(fmt.Sprintf("run rejected: %v", runErr))
	}
	if res == nil {
		return result, nil
	}

	result.RunID = res.RunID
	result.Status = res.Status

	tr, err := st.ReadTrace(ctx, res.RunID)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: read trace: %w", scenario.Name, err)
	}
	result.Trace = traceEvents(tr)

	for _, msg := range EvaluateAssertions(tr, result.Trace, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// RunAll executes scenarios concurrently, at most the harness's
// concurrency limit at a time, and returns results in input order.
// It stops at the first scenario that returns an error.
func (h *Harness) RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, sc := range scenarios {
		g.Go(func() error {
			res, err := h.Run(gctx, sc)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkDeclarations verifies every CUE component is registered with the
// same declaration.
func (h *Harness) checkDeclarations(declared []ir.ComponentSpec) error {
	for _, want := range declared {
		c, ok := h.registry.Lookup(want.Name)
		if !ok {
			return fmt.Errorf("component %s is declared in CUE but not registered", want.Name)
		}
		got := c.Spec()
		if got.Returns != want.Returns || !slices.Equal(got.Params, want.Params) {
			return fmt.Errorf("component %s: CUE declaration %s does not match registered %s",
				want.Name, signature(want), signature(got))
		}
	}
	return nil
}

func signature(c ir.ComponentSpec) string {
	params := make([]string, len(c.Params))
	for i, p := range c.Params {
		params[i] = fmt.Sprintf("%s %s:%s", p.Name, p.Kind, p.Type)
	}
	sig := "(" + strings.Join(params, ", ") + ")"
	if c.Returns != "" {
		sig += " " + c.Returns
	}
	return sig
}
