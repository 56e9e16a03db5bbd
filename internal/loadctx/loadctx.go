package loadctx

import (
	"context"
	"sort"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/materialize"
	"github.com/roach88/beanplan/internal/queryir"
)

// Default batch sizes used when a join does not name one.
const (
	DefaultQueryBatchSize = 100
	DefaultLazyBatchSize  = 10
)

// Fetcher runs a linked secondary query. linkKeys has q.Link.Count entries;
// prefix is the deferred path, so that paths deferred by the secondary
// query register under "<prefix>.<path>" in the same LoadContext.
type Fetcher interface {
	FetchLinked(ctx context.Context, q *queryir.Query, linkKeys [][]any, prefix string) (*materialize.Result, error)
}

// Options configures batch sizes.
type Options struct {
	QueryBatchSize int
	LazyBatchSize  int
}

// LoadContext owns the per-path contexts of one top-level execution.
//
// Thread-safety: NOT safe for concurrent use. An execution is
// single-threaded, including lazy loads triggered by bean access.
type LoadContext struct {
	fetcher Fetcher
	opts    Options
	paths   map[string]PathContext
}

var _ materialize.Registrar = (*LoadContext)(nil)

// New creates a LoadContext fetching through f.
func New(f Fetcher, opts Options) *LoadContext {
	if opts.QueryBatchSize <= 0 {
		opts.QueryBatchSize = DefaultQueryBatchSize
	}
	if opts.LazyBatchSize <= 0 {
		opts.LazyBatchSize = DefaultLazyBatchSize
	}
	return &LoadContext{
		fetcher: f,
		opts:    opts,
		paths:   make(map[string]PathContext),
	}
}

// Declare creates the context for path. Declaring an existing path is a
// no-op: every statement of one shape declares the same paths.
func (lc *LoadContext) Declare(path string, d *jointree.Deferred) {
	if _, ok := lc.paths[path]; ok {
		return
	}
	size := d.BatchSize
	if size <= 0 {
		size = lc.opts.QueryBatchSize
		if d.Mode == queryir.FetchLazy {
			size = lc.opts.LazyBatchSize
		}
	}
	base := pathBase{path: path, deferred: d, batchSize: size, state: StateCollecting}
	if d.Many() {
		lc.paths[path] = &ManyLoadContext{pathBase: base}
	} else {
		lc.paths[path] = &BeanLoadContext{pathBase: base}
	}
}

// RegisterBean adds an unloaded reference to path's batch and arms its
// first-access trap.
func (lc *LoadContext) RegisterBean(path string, ref *bean.Bean) error {
	c, ok := lc.paths[path].(*BeanLoadContext)
	if !ok {
		return &UnknownPathError{Path: path}
	}
	ref.OnFirstAccess(lc.trigger(path))
	c.register(ref)
	return nil
}

// RegisterMany adds an unloaded collection to path's batch and arms its
// first-access trap.
func (lc *LoadContext) RegisterMany(path string, owner *bean.Bean, coll *bean.Collection) error {
	c, ok := lc.paths[path].(*ManyLoadContext)
	if !ok {
		return &UnknownPathError{Path: path}
	}
	coll.OnFirstAccess(lc.trigger(path))
	c.register(owner, coll)
	return nil
}

func (lc *LoadContext) trigger(path string) bean.AccessHook {
	return func(ctx context.Context) error {
		return lc.Flush(ctx, path)
	}
}

// Flush fetches every member pending on path, then the QUERY paths the
// fetch produced.
func (lc *LoadContext) Flush(ctx context.Context, path string) error {
	c, ok := lc.paths[path]
	if !ok {
		return &UnknownPathError{Path: path}
	}
	if err := c.flush(ctx, lc.fetcher); err != nil {
		return err
	}
	return lc.FlushQueryJoins(ctx)
}

// FlushQueryJoins fetches every QUERY path with pending members until none
// remain. Paths are visited parent first.
func (lc *LoadContext) FlushQueryJoins(ctx context.Context) error {
	for {
		c := lc.nextQueryPath()
		if c == nil {
			return nil
		}
		if err := c.flush(ctx, lc.fetcher); err != nil {
			return err
		}
	}
}

func (lc *LoadContext) nextQueryPath() PathContext {
	for _, p := range lc.Paths() {
		c := lc.paths[p]
		if c.Mode() == queryir.FetchQuery && c.State() != StateFailed && c.Pending() > 0 {
			return c
		}
	}
	return nil
}

// Paths returns the declared paths, sorted.
func (lc *LoadContext) Paths() []string {
	out := make([]string, 0, len(lc.paths))
	for p := range lc.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Context returns the context for path.
func (lc *LoadContext) Context(path string) (PathContext, bool) {
	c, ok := lc.paths[path]
	return c, ok
}

// Bean returns the to-one context for path.
func (lc *LoadContext) Bean(path string) (*BeanLoadContext, bool) {
	c, ok := lc.paths[path].(*BeanLoadContext)
	return c, ok
}

// Many returns the collection context for path.
func (lc *LoadContext) Many(path string) (*ManyLoadContext, bool) {
	c, ok := lc.paths[path].(*ManyLoadContext)
	return c, ok
}

// FetchCount returns the number of secondary statements issued.
func (lc *LoadContext) FetchCount() int {
	n := 0
	for _, c := range lc.paths {
		n += c.FetchCount()
	}
	return n
}
