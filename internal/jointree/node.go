package jointree

import (
	"fmt"

	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
)

// Kind is the variant of a join node.
type Kind int

const (
	// KindRoot is the queried entity.
	KindRoot Kind = iota
	// KindBean is a to-one association contributing one bean per row.
	KindBean
	// KindEmbedded is a value type sharing the parent's table alias.
	KindEmbedded
	// KindCollection is a to-many association contributing a repeating
	// row group.
	KindCollection
	// KindSecondary holds columns stored on a secondary table of the
	// parent's entity.
	KindSecondary
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindBean:
		return "bean"
	case KindEmbedded:
		return "embedded"
	case KindCollection:
		return "collection"
	case KindSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RefProp is a foreign key selected on a node to build a reference for a
// deferred to-one association.
type RefProp struct {
	Name    string // association name
	Path    string // deferred path
	Target  string // target type name
	Columns []string
}

// Node is one node of the join tree.
type Node struct {
	Kind     Kind
	Parent   *Node
	Children []*Node

	// Path is the dot-delimited path from the root ("" for the root).
	// Secondary table nodes use "@name" as their last segment.
	Path  string
	Name  string
	Depth int

	Assoc     *meta.Association
	Desc      *meta.Descriptor
	Secondary *meta.SecondaryTable

	Outer      bool
	FilterOnly bool

	IDProps  []meta.Property
	Props    []meta.Property
	RefProps []RefProp

	// Discriminator is set when the node selects an inheritance
	// discriminator column (after the id columns).
	Discriminator *meta.Discriminator
}

// Hydrated reports whether the node produces bean data (as opposed to a
// join present only for predicates).
func (n *Node) Hydrated() bool {
	return !n.FilterOnly
}

// SharesAlias reports whether the node reuses its parent's table alias.
func (n *Node) SharesAlias() bool {
	return n.Kind == KindEmbedded
}

// HasJoins reports whether any table join exists beneath the node.
func (n *Node) HasJoins() bool {
	for _, c := range n.Children {
		if !c.SharesAlias() || c.HasJoins() {
			return true
		}
	}
	return false
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnCount returns the number of columns the node contributes to the
// select list: ids, discriminator, properties, then reference keys.
func (n *Node) ColumnCount() int {
	if n.FilterOnly {
		return 0
	}
	count := len(n.IDProps) + len(n.Props)
	if n.Discriminator != nil {
		count++
	}
	for _, r := range n.RefProps {
		count += len(r.Columns)
	}
	return count
}

// InCollection reports whether the node or an ancestor is a collection.
func (n *Node) InCollection() bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == KindCollection {
			return true
		}
	}
	return false
}

// BeanNode returns the nearest node that owns a bean: the node itself, or
// for embedded and secondary nodes, the closest such ancestor.
func (n *Node) BeanNode() *Node {
	cur := n
	for cur.Kind == KindEmbedded || cur.Kind == KindSecondary {
		cur = cur.Parent
	}
	return cur
}

// Deferred is a QUERY or LAZY path removed from the rendered tree.
type Deferred struct {
	Path      string
	Mode      queryir.FetchMode
	BatchSize int
	Select    queryir.PropertySelection

	Assoc  meta.Association
	Owner  *meta.Descriptor
	Target *meta.Descriptor

	// Parent is the primary tree node whose beans hold the placeholders.
	Parent *Node

	// Joins are the requested joins beneath Path, relative to it.
	Joins []queryir.JoinSpec

	// Converted is set when an eager collection join was turned into a
	// query join.
	Converted bool
}

// Many reports whether the deferred association is a collection.
func (d *Deferred) Many() bool {
	return d.Assoc.Kind == meta.AssocMany
}

// Ref is a resolved {path.property} reference from predicate or order-by
// text.
type Ref struct {
	Node *Node
	Prop meta.Property
}

// Link describes how a secondary fetch is tied back to its parents.
type Link struct {
	Owner string
	Assoc meta.Association

	// Columns are selected first on the root (or on the intersection table
	// when Intersection is set) and constrain the fetch.
	Columns      []string
	Intersection *meta.Intersection
}

// Tree is the expanded join plan of one query.
type Tree struct {
	Type     string
	Root     *Node
	Deferred []*Deferred
	Refs     map[string]Ref
	Link     *Link

	// Distinct is set when filter-only joins pass through a collection.
	Distinct bool

	nodes    map[string]*Node
	deferred map[string]*Deferred
}

// Node returns the node at path ("" for the root).
func (t *Tree) Node(path string) (*Node, bool) {
	n, ok := t.nodes[path]
	return n, ok
}

// DeferredAt returns the deferred registration at path.
func (t *Tree) DeferredAt(path string) (*Deferred, bool) {
	d, ok := t.deferred[path]
	return d, ok
}

// Walk visits every node in pre-order with children in name order. This is
// the order the renderer emits columns in and the materializer reads them.
func (t *Tree) Walk(fn func(n *Node) error) error {
	return walk(t.Root, fn)
}

func walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// ColumnCount returns the total number of columns of hydrated nodes.
func (t *Tree) ColumnCount() int {
	total := 0
	_ = t.Walk(func(n *Node) error {
		total += n.ColumnCount()
		return nil
	})
	return total
}

// EagerCollection returns the eagerly joined collection node, if any.
func (t *Tree) EagerCollection() *Node {
	var found *Node
	_ = t.Walk(func(n *Node) error {
		if found == nil && n.Kind == KindCollection && !n.FilterOnly {
			found = n
		}
		return nil
	})
	return found
}
