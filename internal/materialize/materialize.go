package materialize

import (
	"fmt"
	"strings"

	"github.com/roach88/beanplan/internal/bean"
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/plan"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/rowsource"
)

// RowCursor is the row source consumed by Materialize.
type RowCursor = rowsource.RowCursor

// Registrar receives the placeholders created for deferred paths.
// Paths are absolute: the materializer prefixes them with its Prefix.
type Registrar interface {
	Declare(path string, d *jointree.Deferred)
	RegisterBean(path string, ref *bean.Bean) error
	RegisterMany(path string, owner *bean.Bean, coll *bean.Collection) error
}

// Link ties a fetched root to the parent key it was fetched for.
type Link struct {
	Parent string
	Bean   *bean.Bean
}

// Result is the outcome of materializing one statement.
type Result struct {
	// Beans are the distinct roots in row order.
	Beans []*bean.Bean

	// Links holds one entry per distinct (parent, root) pair when the plan
	// is a linked secondary fetch.
	Links []Link

	Rows    int
	HasMore bool
}

// Materializer builds beans from rows.
type Materializer struct {
	// Context is the identity map shared by every statement of one
	// top-level execution.
	Context *bean.PersistenceContext

	// Loader receives deferred placeholders. May be nil, in which case
	// placeholders have no loader.
	Loader Registrar

	// Prefix is prepended to deferred paths (secondary fetches).
	Prefix string

	// MaxRoots stops reading once this many roots were built; a further
	// root sets Result.HasMore. Zero means no limit.
	MaxRoots int
}

// New creates a materializer.
func New(pc *bean.PersistenceContext, loader Registrar) *Materializer {
	if pc == nil {
		pc = bean.NewPersistenceContext()
	}
	return &Materializer{Context: pc, Loader: loader}
}

// Materialize reads every row of cursor. Any error aborts the whole result.
// The cursor is not closed.
func (m *Materializer) Materialize(p *plan.QueryPlan, cursor RowCursor) (*Result, error) {
	tree := p.Tree
	if m.Loader != nil {
		for _, d := range tree.Deferred {
			m.Loader.Declare(m.path(d.Path), d)
		}
	}

	st := &state{
		m:          m,
		tree:       tree,
		local:      make(map[string]*bean.Bean),
		fresh:      make(map[*bean.Bean]bool),
		deferredAt: make(map[*jointree.Node][]*jointree.Deferred),
		roots:      make(map[*bean.Bean]bool),
		links:      make(map[string]bool),
	}
	for _, d := range tree.Deferred {
		st.deferredAt[d.Parent] = append(st.deferredAt[d.Parent], d)
	}
	if coll := tree.EagerCollection(); coll != nil {
		st.collection = coll
		for n := coll.Parent; n != nil; n = n.Parent {
			st.groupChain = append([]*jointree.Node{n}, st.groupChain...)
		}
		st.closedGroups = make(map[string]bool)
	}

	want := tree.ColumnCount() + p.LinkColumns
	res := &Result{}
	for cursor.Next() {
		values, err := cursor.Values()
		if err != nil {
			return nil, err
		}
		if len(values) != want {
			return nil, &ColumnCountError{Want: want, Got: len(values)}
		}

		if m.MaxRoots > 0 && len(res.Beans) >= m.MaxRoots && st.isNewRoot(values[p.LinkColumns:]) {
			res.HasMore = true
			break
		}

		res.Rows++
		if err := st.readRow(values, p.LinkColumns, res); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Materializer) path(rel string) string {
	return queryir.JoinPath(m.Prefix, rel)
}

// state is the per-statement materialization state.
type state struct {
	m    *Materializer
	tree *jointree.Tree

	// local holds beans built by this statement, including references from
	// the persistence context that this statement populated in place.
	local map[string]*bean.Bean
	fresh map[*bean.Bean]bool

	deferredAt map[*jointree.Node][]*jointree.Deferred

	roots map[*bean.Bean]bool
	links map[string]bool

	collection   *jointree.Node
	groupChain   []*jointree.Node
	groupKey     string
	closedGroups map[string]bool

	// row scoped
	values  []any
	pos     int
	rowBean map[*jointree.Node]*bean.Bean
}

func (st *state) take(n int) []any {
	vals := st.values[st.pos : st.pos+n]
	st.pos += n
	return vals
}

// isNewRoot reports whether the row starts a root not seen before.
func (st *state) isNewRoot(values []any) bool {
	root := st.tree.Root
	ids := values[:len(root.IDProps)]
	if bean.AllNil(ids) {
		return false
	}
	b, ok := st.local[bean.Key(root.Desc.Name, ids)]
	return !ok || !st.roots[b]
}

func (st *state) readRow(values []any, linkColumns int, res *Result) error {
	st.values = values
	st.pos = 0
	st.rowBean = make(map[*jointree.Node]*bean.Bean)

	linkVals := st.take(linkColumns)

	root, err := st.readNode(st.tree.Root, nil)
	if err != nil {
		return err
	}
	if root == nil {
		return fmt.Errorf("row has a null id for root type %s", st.tree.Type)
	}

	if !st.roots[root] {
		st.roots[root] = true
		res.Beans = append(res.Beans, root)
	}
	if linkColumns > 0 {
		parent := bean.IDKey(linkVals)
		pair := parent + "\x00" + bean.Key(root.Type(), root.ID())
		if !st.links[pair] {
			st.links[pair] = true
			res.Links = append(res.Links, Link{Parent: parent, Bean: root})
		}
	}

	return st.checkOrdering()
}

// checkOrdering verifies that rows of one collection parent are contiguous.
func (st *state) checkOrdering() error {
	if st.collection == nil {
		return nil
	}
	parts := make([]string, len(st.groupChain))
	for i, n := range st.groupChain {
		if b := st.rowBean[n]; b != nil {
			parts[i] = bean.Key(n.Desc.Name, b.ID())
		} else {
			parts[i] = "-"
		}
	}
	key := strings.Join(parts, "/")
	if key == st.groupKey {
		return nil
	}
	if st.closedGroups[key] {
		return &InconsistentRowOrderingError{Path: st.collection.Path, Parent: key}
	}
	if st.groupKey != "" {
		st.closedGroups[st.groupKey] = true
	}
	st.groupKey = key
	return nil
}

// readNode consumes a node's columns and its children's. owner is the bean
// of the parent node, nil when the parent row was absent.
func (st *state) readNode(n *jointree.Node, owner *bean.Bean) (*bean.Bean, error) {
	if n.FilterOnly {
		return nil, nil
	}

	switch n.Kind {
	case jointree.KindEmbedded:
		return nil, st.readEmbedded(n, owner)
	case jointree.KindSecondary:
		vals := st.take(len(n.Props))
		if owner != nil && st.fresh[owner] {
			for i, p := range n.Props {
				owner.Set(p.Name, bean.Normalize(vals[i]))
			}
		}
		return nil, nil
	}

	ids := st.take(len(n.IDProps))
	var disc any
	if n.Discriminator != nil {
		disc = st.take(1)[0]
	}
	props := st.take(len(n.Props))

	var b *bean.Bean
	if !bean.AllNil(ids) && (owner != nil || n.Kind == jointree.KindRoot) {
		var fresh bool
		b, fresh = st.lookup(n.Desc.Name, ids)
		if fresh {
			if err := st.populate(n, b, disc, props); err != nil {
				return nil, err
			}
		}
	}

	if err := st.readReferences(n, b); err != nil {
		return nil, err
	}
	st.rowBean[n] = b

	switch n.Kind {
	case jointree.KindBean:
		if owner != nil && st.fresh[owner] {
			owner.SetOne(n.Name, b)
		}
	case jointree.KindCollection:
		if owner != nil {
			coll, ok := owner.PeekMany(n.Name)
			if !ok {
				coll = bean.NewCollection()
				owner.SetMany(n.Name, coll)
			}
			if b != nil && coll.IsLoaded() {
				coll.Add(b)
			}
		}
	}

	for _, child := range n.Children {
		if _, err := st.readNode(child, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// lookup returns the bean for an identity. fresh is true when the bean must
// be populated from the current row. An unloaded reference in the
// persistence context is populated in place and marked loaded, so the load
// context drops it from its pending batch. A failed entry is terminal and is
// shadowed by a new bean.
func (st *state) lookup(typeName string, ids []any) (*bean.Bean, bool) {
	key := bean.Key(typeName, ids)
	if b, ok := st.local[key]; ok {
		return b, false
	}
	pc := st.m.Context
	existing := pc.Get(typeName, ids)
	if existing != nil {
		switch existing.State() {
		case bean.StateLoaded:
			st.local[key] = existing
			return existing, false
		case bean.StateReference, bean.StateLoading:
			existing.MarkLoaded()
			st.local[key] = existing
			st.fresh[existing] = true
			return existing, true
		}
	}
	b := bean.New(typeName, ids)
	st.local[key] = b
	st.fresh[b] = true
	if existing == nil {
		pc.Put(typeName, b)
	}
	return b, true
}

func (st *state) populate(n *jointree.Node, b *bean.Bean, disc any, props []any) error {
	if n.Discriminator != nil && disc != nil {
		value := fmt.Sprint(bean.Normalize(disc))
		concrete, ok := n.Discriminator.TypeFor(value)
		if !ok {
			return fmt.Errorf("type %s: unknown discriminator value %q", n.Desc.Name, value)
		}
		b.SetType(concrete)
	}
	for i, p := range n.Props {
		b.Set(p.Name, bean.Normalize(props[i]))
	}
	for _, d := range st.deferredAt[n] {
		if !d.Many() {
			continue
		}
		coll := bean.NewReferenceCollection()
		path := st.m.path(d.Path)
		coll.MarkReference(b.ID(), path)
		b.SetMany(d.Assoc.Name, coll)
		if st.m.Loader != nil {
			if err := st.m.Loader.RegisterMany(path, b, coll); err != nil {
				return err
			}
		}
	}
	return nil
}

// readReferences consumes the foreign keys of deferred to-one associations
// and sets a reference on fresh beans.
func (st *state) readReferences(n *jointree.Node, b *bean.Bean) error {
	for _, rp := range n.RefProps {
		vals := st.take(len(rp.Columns))
		if b == nil || !st.fresh[b] {
			continue
		}
		if bean.AllNil(vals) {
			b.SetOne(rp.Name, nil)
			continue
		}

		pc := st.m.Context
		if existing := pc.Get(rp.Target, vals); existing != nil {
			b.SetOne(rp.Name, existing)
			continue
		}
		path := st.m.path(rp.Path)
		ref := bean.NewReference(rp.Target, vals)
		ref.MarkReference(b.ID(), path)
		pc.Put(rp.Target, ref)
		b.SetOne(rp.Name, ref)
		if st.m.Loader != nil {
			if err := st.m.Loader.RegisterBean(path, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *state) readEmbedded(n *jointree.Node, owner *bean.Bean) error {
	vals := st.take(len(n.Props))
	if owner == nil || !st.fresh[owner] {
		return nil
	}
	if bean.AllNil(vals) {
		owner.SetOne(n.Name, nil)
		return nil
	}
	emb := bean.New(n.Desc.Name, nil)
	for i, p := range n.Props {
		emb.Set(p.Name, bean.Normalize(vals[i]))
	}
	owner.SetOne(n.Name, emb)
	return nil
}
