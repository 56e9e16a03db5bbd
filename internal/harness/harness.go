package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/compiler"
	"github.com/roach88/beanplan/internal/engine"
	"github.com/roach88/beanplan/internal/store"
	"github.com/roach88/beanplan/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a step clock and sequential execution ids so
// traces are reproducible.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures a scenario run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger passed to the engine. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and load the dataset
// 2. Load, compile and validate the CUE model
// 3. Execute steps: query, touch paths, snapshot the roots
// 4. Check expect clauses and assertions
// 5. Return result with pass/fail, trace, and errors
//
// A returned error means the scenario could not be set up; query failures
// are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ro := &runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(ro)
	}
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ds, err := store.LoadDatasetFile(scenario.Dataset)
	if err != nil {
		return nil, err
	}
	if err := st.LoadDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	model, err := compiler.LoadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	cfg, err := scenario.EngineConfig()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(model, st,
		engine.WithConfig(cfg),
		engine.WithLogger(ro.logger),
		engine.WithClock(testutil.NewStepClock(time.Millisecond)),
		engine.WithIDGenerator(testutil.NewSequentialIDs("")),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{store: st, engine: eng, logger: ro.logger}

	result := NewResult()
	for i := range scenario.Steps {
		if err := h.executeStep(ctx, i, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one query as its own execution, touches the requested
// paths and records the statements and root snapshots.
func (h *Harness) executeStep(ctx context.Context, index int, step *Step, result *Result) error {
	q, err := step.ParseQuery()
	if err != nil {
		return err
	}

	x := h.engine.Begin()
	sr := StepResult{ExecutionID: x.ID, Beans: []map[string]any{}}

	res, err := x.FindList(ctx, q)
	if err == nil {
		for _, path := range step.Touch {
			if err = engine.Touch(ctx, res.Beans, path); err != nil {
				break
			}
		}
	}
	if err != nil {
		sr.Err = err.Error()
	}
	if res != nil {
		sr.Beans = bean.SnapshotAll(res.Beans)
		sr.HasMore = res.HasMore
	}

	for _, te := range x.Trace() {
		result.Trace = append(result.Trace, TraceEvent{
			Step: index,
			Seq:  te.Seq,
			Path: te.Path,
			SQL:  te.SQL,
			Args: te.Args,
			Rows: te.Rows,
		})
	}
	result.Steps = append(result.Steps, sr)

	for _, msg := range checkExpect(index, sr, step.Expect) {
		result.AddError(msg)
	}

	h.logger.Info("step completed",
		"step", index,
		"type", q.Type,
		"execution", x.ID,
		"statements", x.Statements(),
		"beans", len(sr.Beans),
		"error", sr.Err,
	)
	return nil
}
