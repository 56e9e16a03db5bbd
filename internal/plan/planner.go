package plan

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/querysql"
)

// Planner turns queries into cached plans.
//
// Thread-safety: Plan is safe for concurrent use.
type Planner struct {
	provider meta.Provider
	dialect  querysql.Dialect
	options  querysql.Options
	cache    *Cache
	builds   atomic.Int64
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithDialect sets the SQL dialect. Default: sqlite.
func WithDialect(d querysql.Dialect) PlannerOption {
	return func(p *Planner) { p.dialect = d }
}

// WithRenderOptions sets rendering options.
func WithRenderOptions(opts querysql.Options) PlannerOption {
	return func(p *Planner) { p.options = opts }
}

// WithCache shares a cache between planners.
func WithCache(c *Cache) PlannerOption {
	return func(p *Planner) { p.cache = c }
}

// NewPlanner creates a planner over provider.
func NewPlanner(provider meta.Provider, opts ...PlannerOption) *Planner {
	p := &Planner{
		provider: provider,
		dialect:  querysql.SQLite{},
		cache:    NewCache(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns the cached plan for q's shape, building it on a miss.
func (p *Planner) Plan(q *queryir.Query) (*QueryPlan, error) {
	key, err := KeyOf(q, p.dialect.Name(), p.options)
	if err != nil {
		return nil, err
	}
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	built, err := p.build(key, q)
	if err != nil {
		return nil, err
	}
	p.cache.Put(built)
	return built, nil
}

func (p *Planner) build(key Key, q *queryir.Query) (*QueryPlan, error) {
	tree, err := jointree.Build(p.provider, q)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", q.Type, err)
	}
	rendered, err := querysql.Render(tree, q, p.dialect, p.options)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", q.Type, err)
	}
	p.builds.Add(1)

	slog.Debug("plan built",
		"type", q.Type,
		"key", string(key)[:12],
		"columns", rendered.ColumnCount(),
		"deferred", len(tree.Deferred))

	return &QueryPlan{
		Key:         key,
		Type:        q.Type,
		SQL:         rendered.SQL,
		Tree:        tree,
		Columns:     rendered.Columns,
		LinkColumns: rendered.LinkColumns,
		Paged:       rendered.Paged,
		Distinct:    rendered.Distinct,
		LimitOrder:  rendered.LimitOrder,
	}, nil
}

// Builds returns how many plans were built (cache misses that completed).
func (p *Planner) Builds() int64 {
	return p.builds.Load()
}

// Cache returns the planner's cache.
func (p *Planner) Cache() *Cache {
	return p.cache
}

// Dialect returns the planner's dialect.
func (p *Planner) Dialect() querysql.Dialect {
	return p.dialect
}
