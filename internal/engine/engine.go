package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/config"
	"github.com/roach88/beanplan/internal/loadctx"
	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/plan"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/querysql"
	"github.com/roach88/beanplan/internal/rowsource"
)

// Executor runs rendered SQL. Implemented by store.Store.
type Executor = rowsource.Executor

// Engine plans and runs queries.
//
// Thread-safety model:
//   - Plan, FindList, FindOne, Begin: safe from any goroutine
//   - an Execution and the beans it returns: one goroutine at a time
type Engine struct {
	executor Executor
	planner  *plan.Planner

	cfg     *config.Config
	dialect querysql.Dialect
	cache   *plan.Cache

	logger *slog.Logger
	clock  Clock
	ids    ExecutionIDGenerator
	seq    Sequence
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithConfig sets dialect, batch sizes, column aliases and the statement
// limit from cfg.
//
// Default: config.Default()
func WithConfig(cfg *config.Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithDialect overrides the configured dialect.
func WithDialect(d querysql.Dialect) EngineOption {
	return func(e *Engine) {
		e.dialect = d
	}
}

// WithCache shares a plan cache between engines.
func WithCache(c *plan.Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the time source used for statement timing.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the execution id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g ExecutionIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine over provider, executing through exec.
func New(provider meta.Provider, exec Executor, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		executor: exec,
		logger:   slog.Default(),
		clock:    systemClock{},
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if e.dialect == nil {
		d, err := e.cfg.DialectImpl()
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.dialect = d
	}
	if e.cache == nil {
		e.cache = plan.NewCache()
	}

	e.planner = plan.NewPlanner(provider,
		plan.WithDialect(e.dialect),
		plan.WithCache(e.cache),
		plan.WithRenderOptions(querysql.Options{ColumnAliases: e.cfg.ColumnAliases}),
	)
	return e, nil
}

// Plan returns the plan for q, from the cache when its shape was seen.
func (e *Engine) Plan(q *queryir.Query) (*plan.QueryPlan, error) {
	return e.planner.Plan(q)
}

// Begin starts a top-level execution.
func (e *Engine) Begin() *Execution {
	x := &Execution{
		ID:     e.ids.Generate(),
		engine: e,
		pc:     bean.NewPersistenceContext(),
		quota:  NewStatementQuota(e.cfg.MaxStatements),
	}
	x.loads = loadctx.New(x, loadctx.Options{
		QueryBatchSize: e.cfg.DefaultBatchSize,
		LazyBatchSize:  e.cfg.LazyBatchSize,
	})
	return x
}

// FindList runs q as a new execution.
func (e *Engine) FindList(ctx context.Context, q *queryir.Query) (*ListResult, error) {
	return e.Begin().FindList(ctx, q)
}

// FindOne runs q as a new execution and returns its single root, or nil
// when nothing matched.
func (e *Engine) FindOne(ctx context.Context, q *queryir.Query) (*bean.Bean, error) {
	return e.Begin().FindOne(ctx, q)
}

// Planner returns the engine's planner.
func (e *Engine) Planner() *plan.Planner { return e.planner }

// Cache returns the plan cache.
func (e *Engine) Cache() *plan.Cache { return e.cache }

// Dialect returns the SQL dialect in use.
func (e *Engine) Dialect() querysql.Dialect { return e.dialect }

// Config returns the effective configuration.
func (e *Engine) Config() *config.Config { return e.cfg }
