package loadctx

import (
	"context"
	"log/slog"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/materialize"
	"github.com/roach88/beanplan/internal/queryir"
)

// State is the lifecycle state of one deferred path.
type State int

const (
	StateCollecting State = iota + 1
	StateFetching
	StateSatisfied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateFetching:
		return "fetching"
	case StateSatisfied:
		return "satisfied"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PathContext is the per-path batch of placeholders. It is implemented by
// BeanLoadContext and ManyLoadContext.
type PathContext interface {
	Path() string
	Mode() queryir.FetchMode
	BatchSize() int
	State() State
	Err() error

	// Pending returns the number of members waiting for the next fetch.
	Pending() int

	// FetchCount returns the number of statements issued for this path.
	FetchCount() int

	flush(ctx context.Context, f Fetcher) error
}

type pathBase struct {
	path      string
	deferred  *jointree.Deferred
	batchSize int
	state     State
	err       error
	fetches   int
}

func (b *pathBase) Path() string            { return b.path }
func (b *pathBase) Mode() queryir.FetchMode { return b.deferred.Mode }
func (b *pathBase) BatchSize() int          { return b.batchSize }
func (b *pathBase) State() State            { return b.state }
func (b *pathBase) Err() error              { return b.err }
func (b *pathBase) FetchCount() int         { return b.fetches }

// Deferred returns the registration the path was declared with.
func (b *pathBase) Deferred() *jointree.Deferred { return b.deferred }

// query builds the secondary query for count link keys.
func (b *pathBase) query(count int) *queryir.Query {
	d := b.deferred
	joins := make([]queryir.JoinSpec, len(d.Joins))
	for i, j := range d.Joins {
		j.Select = j.Select.Clone()
		joins[i] = j
	}
	return &queryir.Query{
		Type:   d.Target.Name,
		Select: d.Select.Clone(),
		Joins:  joins,
		Link: &queryir.Link{
			Owner:    d.Owner.Name,
			Property: d.Assoc.Name,
			Count:    count,
		},
	}
}

// fetchAll issues one statement per batch of keys and returns every link.
// Nothing is distributed here, so a failing batch leaves no member loaded.
func (b *pathBase) fetchAll(ctx context.Context, f Fetcher, keys [][]any) ([]materialize.Link, error) {
	var links []materialize.Link
	for _, part := range chunk(keys, b.batchSize) {
		size := PaddedSize(len(part), b.batchSize)
		b.fetches++
		slog.Debug("batch fetch",
			"path", b.path,
			"mode", b.deferred.Mode.String(),
			"keys", len(part),
			"padded", size,
		)
		res, err := f.FetchLinked(ctx, b.query(size), pad(part, size), b.path)
		if err != nil {
			return nil, err
		}
		links = append(links, res.Links...)
	}
	return links, nil
}

func (b *pathBase) begin() {
	if b.state == StateSatisfied {
		b.state = StateCollecting
	}
}

func (b *pathBase) failure(err error) error {
	b.state = StateFailed
	b.err = &BatchFetchError{Path: b.path, Err: err}
	slog.Warn("batch fetch failed", "path", b.path, "error", err)
	return b.err
}

func waiting(s bean.State) bool {
	return s == bean.StateReference || s == bean.StateLoading
}

// BeanLoadContext batches unloaded to-one references.
type BeanLoadContext struct {
	pathBase
	pending []*bean.Bean
}

var _ PathContext = (*BeanLoadContext)(nil)

func (c *BeanLoadContext) Pending() int {
	n := 0
	for _, ref := range c.pending {
		if waiting(ref.State()) {
			n++
		}
	}
	return n
}

func (c *BeanLoadContext) register(ref *bean.Bean) {
	if c.state == StateFailed {
		ref.Fail(c.err)
		return
	}
	c.begin()
	c.pending = append(c.pending, ref)
}

func (c *BeanLoadContext) take() []*bean.Bean {
	seen := make(map[*bean.Bean]bool, len(c.pending))
	var out []*bean.Bean
	for _, ref := range c.pending {
		if seen[ref] || !waiting(ref.State()) {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	c.pending = nil
	return out
}

func (c *BeanLoadContext) flush(ctx context.Context, f Fetcher) error {
	if c.state == StateFailed {
		return c.err
	}
	batch := c.take()
	if len(batch) == 0 {
		return nil
	}
	c.state = StateFetching

	var keys [][]any
	seen := make(map[string]bool, len(batch))
	for _, ref := range batch {
		k := ref.IDKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, ref.ID())
		}
	}

	links, err := c.fetchAll(ctx, f, keys)
	if err != nil {
		err = c.failure(err)
		for _, ref := range batch {
			ref.Fail(err)
		}
		for _, ref := range c.take() {
			ref.Fail(err)
		}
		return err
	}

	found := make(map[string]*bean.Bean, len(links))
	for _, l := range links {
		found[l.Parent] = l.Bean
	}
	for _, ref := range batch {
		src, ok := found[ref.IDKey()]
		if !ok {
			ref.Fail(&NotFoundError{Path: c.path, Type: ref.Type(), ID: ref.IDKey()})
			continue
		}
		if src != ref {
			ref.LoadFrom(src)
		}
	}

	c.state = StateSatisfied
	if len(c.pending) > 0 {
		c.state = StateCollecting
	}
	return nil
}

type manyMember struct {
	owner *bean.Bean
	coll  *bean.Collection
}

// ManyLoadContext batches unloaded collections.
type ManyLoadContext struct {
	pathBase
	pending []manyMember
}

var _ PathContext = (*ManyLoadContext)(nil)

func (c *ManyLoadContext) Pending() int {
	n := 0
	for _, m := range c.pending {
		if waiting(m.coll.State()) {
			n++
		}
	}
	return n
}

// Owners returns the owners of the collections waiting for the next fetch.
func (c *ManyLoadContext) Owners() []*bean.Bean {
	members := c.take(false)
	out := make([]*bean.Bean, len(members))
	for i, m := range members {
		out[i] = m.owner
	}
	return out
}

func (c *ManyLoadContext) register(owner *bean.Bean, coll *bean.Collection) {
	if c.state == StateFailed {
		coll.Fail(c.err)
		return
	}
	c.begin()
	c.pending = append(c.pending, manyMember{owner: owner, coll: coll})
}

func (c *ManyLoadContext) take(clear bool) []manyMember {
	seen := make(map[*bean.Collection]bool, len(c.pending))
	var out []manyMember
	for _, m := range c.pending {
		if seen[m.coll] || !waiting(m.coll.State()) {
			continue
		}
		seen[m.coll] = true
		out = append(out, m)
	}
	if clear {
		c.pending = nil
	}
	return out
}

func (c *ManyLoadContext) flush(ctx context.Context, f Fetcher) error {
	if c.state == StateFailed {
		return c.err
	}
	batch := c.take(true)
	if len(batch) == 0 {
		return nil
	}
	c.state = StateFetching

	var keys [][]any
	seen := make(map[string]bool, len(batch))
	for _, m := range batch {
		k := m.owner.IDKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, m.owner.ID())
		}
	}

	links, err := c.fetchAll(ctx, f, keys)
	if err != nil {
		err = c.failure(err)
		for _, m := range batch {
			m.coll.Fail(err)
		}
		for _, m := range c.take(true) {
			m.coll.Fail(err)
		}
		return err
	}

	groups := make(map[string][]*bean.Bean)
	for _, l := range links {
		groups[l.Parent] = append(groups[l.Parent], l.Bean)
	}
	for _, m := range batch {
		m.coll.Load(groups[m.owner.IDKey()])
	}

	c.state = StateSatisfied
	if len(c.pending) > 0 {
		c.state = StateCollecting
	}
	return nil
}
