package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/loadctx"
	"github.com/roach88/beanplan/internal/materialize"
	"github.com/roach88/beanplan/internal/plan"
	"github.com/roach88/beanplan/internal/queryir"
)

// ListResult is the outcome of FindList.
type ListResult struct {
	ExecutionID string
	Beans       []*bean.Bean

	// HasMore is set when the query was paged and rows exist beyond the
	// window.
	HasMore bool

	// Execution stays usable: lazy placeholders in Beans load through it.
	Execution *Execution
}

// TraceEntry describes one executed statement.
type TraceEntry struct {
	Seq     int64
	Path    string // empty for the primary statement
	PlanKey plan.Key
	SQL     string
	Args    []any
	Rows    int
	Elapsed time.Duration
}

// Execution is one top-level execution: an identity map, a load context
// and the statements issued so far.
//
// Thread-safety: NOT safe for concurrent use.
type Execution struct {
	ID string

	engine *Engine
	pc     *bean.PersistenceContext
	loads  *loadctx.LoadContext
	quota  *StatementQuota
	trace  []TraceEntry
}

var _ loadctx.Fetcher = (*Execution)(nil)

// FindList runs q and flushes its QUERY joins.
func (x *Execution) FindList(ctx context.Context, q *queryir.Query) (*ListResult, error) {
	if q.Link != nil {
		return nil, errors.New("link is reserved for secondary fetches")
	}
	p, err := x.engine.Plan(q)
	if err != nil {
		return nil, err
	}

	m := materialize.New(x.pc, x.loads)
	if q.MaxRows > 0 {
		m.MaxRoots = q.MaxRows
	}
	res, err := x.run(ctx, p, p.Args(q, nil), m, "")
	if err != nil {
		return nil, err
	}
	if err := x.loads.FlushQueryJoins(ctx); err != nil {
		return nil, err
	}

	x.engine.logger.Debug("find list",
		"execution", x.ID,
		"type", q.Type,
		"beans", len(res.Beans),
		"has_more", res.HasMore,
		"statements", len(x.trace))

	return &ListResult{
		ExecutionID: x.ID,
		Beans:       res.Beans,
		HasMore:     res.HasMore,
		Execution:   x,
	}, nil
}

// FindOne runs q and returns its single root, or nil when nothing matched.
func (x *Execution) FindOne(ctx context.Context, q *queryir.Query) (*bean.Bean, error) {
	res, err := x.FindList(ctx, q)
	if err != nil {
		return nil, err
	}
	switch len(res.Beans) {
	case 0:
		return nil, nil
	case 1:
		return res.Beans[0], nil
	default:
		return nil, &NonUniqueResultError{Type: q.Type, Count: len(res.Beans)}
	}
}

// FetchLinked runs a secondary fetch for the load context. Paths deferred
// by q register under prefix.
func (x *Execution) FetchLinked(ctx context.Context, q *queryir.Query, linkKeys [][]any, prefix string) (*materialize.Result, error) {
	p, err := x.engine.Plan(q)
	if err != nil {
		return nil, err
	}
	m := materialize.New(x.pc, x.loads)
	m.Prefix = prefix
	return x.run(ctx, p, p.Args(q, linkKeys), m, prefix)
}

// run executes one statement, materializes it and closes the cursor
// before returning.
func (x *Execution) run(ctx context.Context, p *plan.QueryPlan, args []any, m *materialize.Materializer, path string) (*materialize.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := x.quota.Check(x.ID); err != nil {
		return nil, err
	}

	e := x.engine
	seq := e.seq.Next()
	start := e.clock.Now()

	cursor, err := e.executor.Execute(ctx, p.SQL, args...)
	if err != nil {
		e.logger.Warn("statement failed", "execution", x.ID, "seq", seq, "path", path, "error", err)
		return nil, &StatementExecutionError{SQL: p.SQL, Path: path, Err: err}
	}
	res, err := m.Materialize(p, cursor)
	closeErr := cursor.Close()
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", p.Type, err)
	}
	if closeErr != nil {
		return nil, &StatementExecutionError{SQL: p.SQL, Path: path, Err: closeErr}
	}

	elapsed := e.clock.Now().Sub(start)
	p.Stats().Record(res.Rows, elapsed)
	x.trace = append(x.trace, TraceEntry{
		Seq:     seq,
		Path:    path,
		PlanKey: p.Key,
		SQL:     p.SQL,
		Args:    args,
		Rows:    res.Rows,
		Elapsed: elapsed,
	})

	e.logger.Debug("statement",
		"execution", x.ID,
		"seq", seq,
		"path", path,
		"rows", res.Rows,
		"elapsed", elapsed)
	return res, nil
}

// Trace returns the statements issued so far, lazy loads included.
func (x *Execution) Trace() []TraceEntry {
	return append([]TraceEntry(nil), x.trace...)
}

// Loads returns the execution's load context.
func (x *Execution) Loads() *loadctx.LoadContext { return x.loads }

// Context returns the execution's identity map.
func (x *Execution) Context() *bean.PersistenceContext { return x.pc }

// Statements returns the number of statements issued.
func (x *Execution) Statements() int { return x.quota.Used() }
