package jointree

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
)

// refPattern matches {path.property} references in predicate and order-by
// text.
var refPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\}`)

// References returns the distinct {path.property} references in text, in
// order of first appearance.
func References(text string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// ReplaceReferences substitutes every {path.property} reference in text.
func ReplaceReferences(text string, fn func(ref string) string) string {
	return refPattern.ReplaceAllStringFunc(text, func(m string) string {
		return fn(m[1 : len(m)-1])
	})
}

// Build expands q against the metadata in provider.
//
// Joins are placed in path order so a parent is always positioned before
// its children. Deferral is decided during that single pass: a join whose
// nearest requested ancestor is deferred is absorbed into the ancestor's
// registration.
func Build(provider meta.Provider, q *queryir.Query) (*Tree, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}

	rootDesc, err := provider.Descriptor(q.Type)
	if err != nil {
		return nil, err
	}

	root := &Node{Kind: KindRoot, Desc: rootDesc}
	b := &builder{
		provider: provider,
		query:    q,
		tree: &Tree{
			Type:     rootDesc.Name,
			Root:     root,
			Refs:     make(map[string]Ref),
			nodes:    map[string]*Node{"": root},
			deferred: make(map[string]*Deferred),
		},
	}

	if err := b.hydrate(root, q.Select); err != nil {
		return nil, err
	}

	joins := slices.Clone(q.Joins)
	sort.SliceStable(joins, func(i, j int) bool { return joins[i].Path < joins[j].Path })
	for _, spec := range joins {
		if err := b.addJoin(spec); err != nil {
			return nil, err
		}
	}

	if err := b.addSelectedReferences(); err != nil {
		return nil, err
	}

	for _, text := range []string{q.Where, q.OrderBy} {
		for _, ref := range References(text) {
			if err := b.resolveRef(ref); err != nil {
				return nil, err
			}
		}
	}

	if q.Link != nil {
		if err := b.resolveLink(q.Link); err != nil {
			return nil, err
		}
	}

	sortChildren(root)
	sort.Slice(b.tree.Deferred, func(i, j int) bool {
		return b.tree.Deferred[i].Path < b.tree.Deferred[j].Path
	})
	return b.tree, nil
}

// builder holds the state of one expansion.
type builder struct {
	provider meta.Provider
	query    *queryir.Query
	tree     *Tree

	// pendingRefs are association names listed in a property selection.
	pendingRefs []pendingRef
}

type pendingRef struct {
	node  *Node
	assoc meta.Association
}

// step is one resolved segment of a path.
type step struct {
	owner  *meta.Descriptor
	assoc  meta.Association
	target *meta.Descriptor
}

// resolvePath resolves every association segment of path starting at the
// root type and rejects repeated edges.
func (b *builder) resolvePath(path string, segs []string) ([]step, error) {
	owner := b.tree.Root.Desc
	edges := make(map[string]bool, len(segs))
	steps := make([]step, 0, len(segs))
	for _, seg := range segs {
		assoc, ok := owner.Association(seg)
		if !ok {
			return nil, &UnknownPropertyError{Path: path, Type: owner.Name}
		}
		edge := owner.Name + "." + seg
		if edges[edge] {
			return nil, &JoinCycleError{Path: path, Edge: edge}
		}
		edges[edge] = true

		target, err := b.provider.Descriptor(assoc.Target)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		steps = append(steps, step{owner: owner, assoc: assoc, target: target})
		owner = target
	}
	return steps, nil
}

func (b *builder) addJoin(spec queryir.JoinSpec) error {
	segs := queryir.SplitPath(spec.Path)
	steps, err := b.resolvePath(spec.Path, segs)
	if err != nil {
		return err
	}

	cur := b.tree.Root
	for i, st := range steps {
		prefix := strings.Join(segs[:i+1], ".")
		last := i == len(steps)-1

		if d, ok := b.tree.deferred[prefix]; ok {
			if !last {
				d.Joins = append(d.Joins, relativeJoin(spec, prefix))
			}
			return nil
		}
		if n, ok := b.tree.nodes[prefix]; ok {
			cur = n
			continue
		}

		mode, sel, batch := queryir.FetchEager, queryir.PropertySelection{}, 0
		if last {
			mode, sel, batch = spec.Mode, spec.Select, spec.BatchSize
		}

		if st.assoc.Kind == meta.AssocEmbedded {
			n, err := b.addEmbedded(cur, st.assoc, st.target, sel, false)
			if err != nil {
				return err
			}
			cur = n
			continue
		}

		converted := false
		if mode == queryir.FetchEager && st.assoc.Kind == meta.AssocMany &&
			(b.query.Paged() || b.tree.EagerCollection() != nil) {
			mode, converted = queryir.FetchQuery, true
		}

		if mode.Deferred() {
			d := b.addDeferred(cur, prefix, st, mode, batch, sel)
			d.Converted = converted
			if !last {
				d.Joins = append(d.Joins, relativeJoin(spec, prefix))
			}
			return nil
		}

		n, err := b.addNode(cur, prefix, st, false)
		if err != nil {
			return err
		}
		if err := b.hydrate(n, sel); err != nil {
			return err
		}
		cur = n
	}
	return nil
}

func relativeJoin(spec queryir.JoinSpec, prefix string) queryir.JoinSpec {
	rel := spec
	rel.Path = strings.TrimPrefix(spec.Path, prefix+".")
	rel.Select = spec.Select.Clone()
	return rel
}

func (b *builder) addNode(parent *Node, path string, st step, filterOnly bool) (*Node, error) {
	assoc := st.assoc
	n := &Node{
		Parent:     parent,
		Path:       path,
		Name:       assoc.Name,
		Depth:      parent.Depth + 1,
		Assoc:      &assoc,
		Desc:       st.target,
		FilterOnly: filterOnly || parent.FilterOnly,
	}

	switch assoc.Kind {
	case meta.AssocOne:
		n.Kind = KindBean
		n.Outer = parent.Outer || assoc.Optional
	case meta.AssocMany:
		n.Kind = KindCollection
		n.Outer = true
		if n.FilterOnly {
			b.tree.Distinct = true
		}
	default:
		return nil, fmt.Errorf("association %s.%s: unexpected kind %s", parent.Desc.Name, assoc.Name, assoc.Kind)
	}

	if !n.FilterOnly {
		n.IDProps = st.target.IDProperties()
		n.Discriminator = st.target.Discriminator
	}

	parent.Children = append(parent.Children, n)
	b.tree.nodes[path] = n
	return n, nil
}

func (b *builder) addEmbedded(parent *Node, assoc meta.Association, target *meta.Descriptor, sel queryir.PropertySelection, filterOnly bool) (*Node, error) {
	path := queryir.JoinPath(parent.Path, assoc.Name)
	if n, ok := b.tree.nodes[path]; ok {
		return n, nil
	}
	n := &Node{
		Kind:       KindEmbedded,
		Parent:     parent,
		Path:       path,
		Name:       assoc.Name,
		Depth:      parent.Depth + 1,
		Assoc:      &assoc,
		Desc:       target,
		Outer:      parent.Outer,
		FilterOnly: filterOnly || parent.FilterOnly,
	}
	if !n.FilterOnly {
		props, err := selectProps(target, path, sel)
		if err != nil {
			return nil, err
		}
		n.Props = props
	}
	parent.Children = append(parent.Children, n)
	b.tree.nodes[path] = n
	return n, nil
}

func (b *builder) addSecondary(parent *Node, sec meta.SecondaryTable, filterOnly bool) *Node {
	name := "@" + sec.Name
	if n := parent.Child(name); n != nil {
		return n
	}
	sec2 := sec
	n := &Node{
		Kind:       KindSecondary,
		Parent:     parent,
		Path:       queryir.JoinPath(parent.Path, name),
		Name:       name,
		Depth:      parent.Depth + 1,
		Desc:       parent.Desc,
		Secondary:  &sec2,
		Outer:      true,
		FilterOnly: filterOnly,
	}
	parent.Children = append(parent.Children, n)
	b.tree.nodes[n.Path] = n
	return n
}

func (b *builder) addDeferred(parent *Node, path string, st step, mode queryir.FetchMode, batch int, sel queryir.PropertySelection) *Deferred {
	d := &Deferred{
		Path:      path,
		Mode:      mode,
		BatchSize: batch,
		Select:    sel.Clone(),
		Assoc:     st.assoc,
		Owner:     st.owner,
		Target:    st.target,
		Parent:    parent,
	}
	if st.assoc.Kind == meta.AssocOne {
		parent.RefProps = append(parent.RefProps, RefProp{
			Name:    st.assoc.Name,
			Path:    path,
			Target:  st.target.Name,
			Columns: slices.Clone(st.assoc.LocalColumns),
		})
	}
	b.tree.deferred[path] = d
	b.tree.Deferred = append(b.tree.Deferred, d)
	return d
}

// hydrate applies a property selection to a node. Ids are always selected;
// properties on secondary tables move to a secondary child; association
// names become embedded children or lazy references.
func (b *builder) hydrate(n *Node, sel queryir.PropertySelection) error {
	desc := n.Desc
	n.IDProps = desc.IDProperties()
	n.Discriminator = desc.Discriminator

	var names []string
	switch {
	case sel.All:
		for _, p := range desc.Properties() {
			names = append(names, p.Name)
		}
	case sel.IsDefault():
		names = desc.DefaultSelect()
	default:
		names = sel.Properties
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if prop, ok := desc.Property(name); ok {
			switch {
			case prop.ID:
			case prop.Table != "":
				sec, ok := desc.Secondary(prop.Table)
				if !ok {
					return fmt.Errorf("property %s.%s: unknown secondary table %q", desc.Name, name, prop.Table)
				}
				child := b.addSecondary(n, sec, false)
				child.Props = append(child.Props, prop)
			default:
				n.Props = append(n.Props, prop)
			}
			continue
		}

		assoc, ok := desc.Association(name)
		if !ok {
			return &UnknownPropertyError{Path: queryir.JoinPath(n.Path, name), Type: desc.Name}
		}
		if assoc.Kind == meta.AssocEmbedded {
			target, err := b.provider.Descriptor(assoc.Target)
			if err != nil {
				return err
			}
			if _, err := b.addEmbedded(n, assoc, target, queryir.PropertySelection{}, false); err != nil {
				return err
			}
			continue
		}
		b.pendingRefs = append(b.pendingRefs, pendingRef{node: n, assoc: assoc})
	}
	return nil
}

// addSelectedReferences turns association names listed in selections into
// lazy registrations, unless the path was joined explicitly.
func (b *builder) addSelectedReferences() error {
	for _, pr := range b.pendingRefs {
		path := queryir.JoinPath(pr.node.Path, pr.assoc.Name)
		if _, ok := b.tree.nodes[path]; ok {
			continue
		}
		if _, ok := b.tree.deferred[path]; ok {
			continue
		}
		target, err := b.provider.Descriptor(pr.assoc.Target)
		if err != nil {
			return err
		}
		st := step{owner: pr.node.Desc, assoc: pr.assoc, target: target}
		b.addDeferred(pr.node, path, st, queryir.FetchLazy, 0, queryir.PropertySelection{})
	}
	return nil
}

// resolveRef resolves a predicate or order-by reference, adding filter-only
// joins for paths that are not part of the rendered tree.
func (b *builder) resolveRef(ref string) error {
	if _, ok := b.tree.Refs[ref]; ok {
		return nil
	}

	segs := queryir.SplitPath(ref)
	propName := segs[len(segs)-1]
	assocSegs := segs[:len(segs)-1]

	steps, err := b.resolvePath(ref, assocSegs)
	if err != nil {
		return err
	}

	cur := b.tree.Root
	for i, st := range steps {
		prefix := strings.Join(assocSegs[:i+1], ".")
		if n, ok := b.tree.nodes[prefix]; ok {
			cur = n
			continue
		}

		// A reference to the id of a to-one target reads the foreign key
		// on the owner; no join is needed.
		if i == len(steps)-1 && st.assoc.Kind == meta.AssocOne {
			if prop, ok := st.target.Property(propName); ok && prop.ID {
				if idx := slices.Index(st.assoc.ForeignColumns, prop.Column); idx >= 0 {
					b.tree.Refs[ref] = Ref{Node: cur, Prop: meta.Property{Name: ref, Column: st.assoc.LocalColumns[idx]}}
					return nil
				}
			}
		}

		if st.assoc.Kind == meta.AssocEmbedded {
			n, err := b.addEmbedded(cur, st.assoc, st.target, queryir.PropertySelection{}, true)
			if err != nil {
				return err
			}
			cur = n
			continue
		}
		n, err := b.addNode(cur, prefix, st, true)
		if err != nil {
			return err
		}
		cur = n
	}

	prop, ok := cur.Desc.Property(propName)
	if !ok {
		return &UnknownPropertyError{Path: ref, Type: cur.Desc.Name}
	}
	if prop.Table != "" {
		sec, ok := cur.Desc.Secondary(prop.Table)
		if !ok {
			return fmt.Errorf("property %s.%s: unknown secondary table %q", cur.Desc.Name, prop.Name, prop.Table)
		}
		// Embedded values live on the bean node's table.
		owner := cur.BeanNode()
		b.tree.Refs[ref] = Ref{Node: b.addSecondary(owner, sec, true), Prop: prop}
		return nil
	}
	b.tree.Refs[ref] = Ref{Node: cur, Prop: prop}
	return nil
}

func (b *builder) resolveLink(l *queryir.Link) error {
	owner, err := b.provider.Descriptor(l.Owner)
	if err != nil {
		return err
	}
	assoc, ok := owner.Association(l.Property)
	if !ok {
		return &UnknownPropertyError{Path: l.Property, Type: owner.Name}
	}
	if assoc.Target != b.tree.Type {
		return fmt.Errorf("link %s.%s targets %s, not %s", owner.Name, assoc.Name, assoc.Target, b.tree.Type)
	}

	link := &Link{Owner: owner.Name, Assoc: assoc}
	switch {
	case assoc.IsManyToMany():
		inter := *assoc.Intersection
		link.Intersection = &inter
		link.Columns = slices.Clone(inter.LocalColumns)
	case assoc.Kind == meta.AssocMany, assoc.Kind == meta.AssocOne:
		link.Columns = slices.Clone(assoc.ForeignColumns)
	default:
		return fmt.Errorf("link %s.%s: %s associations cannot be fetched separately", owner.Name, assoc.Name, assoc.Kind)
	}
	b.tree.Link = link
	return nil
}

// selectProps resolves a selection against an embeddable descriptor.
func selectProps(desc *meta.Descriptor, path string, sel queryir.PropertySelection) ([]meta.Property, error) {
	var names []string
	switch {
	case sel.All:
		return slices.Clone(desc.Properties()), nil
	case sel.IsDefault():
		names = desc.DefaultSelect()
	default:
		names = sel.Properties
	}
	props := make([]meta.Property, 0, len(names))
	for _, name := range names {
		p, ok := desc.Property(name)
		if !ok {
			return nil, &UnknownPropertyError{Path: queryir.JoinPath(path, name), Type: desc.Name}
		}
		props = append(props, p)
	}
	return props, nil
}

func sortChildren(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		sortChildren(c)
	}
}
