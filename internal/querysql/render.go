package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/meta"
	"github.com/roach88/beanplan/internal/queryir"
)

// Options tune rendering.
type Options struct {
	// ColumnAliases appends " c0", " c1", ... to every selected column.
	ColumnAliases bool
}

// Rendered is the output of one rendering pass.
type Rendered struct {
	// SQL is the final statement: paging applied and placeholders rebound
	// for the dialect.
	SQL string

	// Columns are the selected expressions in emission order, without
	// column aliases. Link columns come first.
	Columns []string

	// LinkColumns is the number of leading link columns.
	LinkColumns int

	Distinct   bool
	Paged      bool
	LimitOrder LimitOrder
}

// ColumnCount returns the number of selected columns.
func (r *Rendered) ColumnCount() int {
	return len(r.Columns)
}

// Render converts tree (built from q) into SQL for dialect.
func Render(tree *jointree.Tree, q *queryir.Query, dialect Dialect, opts Options) (*Rendered, error) {
	if dialect == nil {
		dialect = SQLite{}
	}
	rc := &renderContext{
		tree:    tree,
		aliases: make(map[string]string),
		seen:    make(map[string]bool),
	}

	parts, err := rc.render(q)
	if err != nil {
		return nil, err
	}
	parts.ColumnAliases = opts.ColumnAliases

	paged := q.Paged()
	sql, order, err := dialect.Paginate(parts, q.FirstRow > 0, q.MaxRows > 0)
	if err != nil {
		return nil, err
	}

	return &Rendered{
		SQL:         dialect.Rebind(sql),
		Columns:     parts.Columns,
		LinkColumns: rc.linkColumns,
		Distinct:    parts.Distinct,
		Paged:       paged,
		LimitOrder:  order,
	}, nil
}

// renderContext is the state of one rendering pass.
type renderContext struct {
	tree *jointree.Tree

	aliases   map[string]string
	nextAlias int
	stack     []string

	columns     []string
	joins       []string
	seen        map[string]bool
	linkColumns int
}

func (rc *renderContext) render(q *queryir.Query) (SelectParts, error) {
	root := rc.tree.Root
	rootAlias := rc.alias(root)

	if link := rc.tree.Link; link != nil {
		linkAlias := rootAlias
		if inter := link.Intersection; inter != nil {
			linkAlias = rootAlias + "x"
			rc.addJoin("JOIN", inter.Table, rootAlias, linkAlias,
				onClause(linkAlias, inter.ForeignColumns, rootAlias, link.Assoc.ForeignColumns))
		}
		for _, col := range link.Columns {
			rc.columns = append(rc.columns, linkAlias+"."+col)
		}
		rc.linkColumns = len(link.Columns)
	}

	if err := rc.renderNode(root); err != nil {
		return SelectParts{}, err
	}

	var where []string
	if strings.TrimSpace(q.Where) != "" {
		text, err := rc.rewrite(q.Where)
		if err != nil {
			return SelectParts{}, err
		}
		where = append(where, text)
	}
	if link := rc.tree.Link; link != nil {
		where = append(where, rc.linkPredicate(q.Link.Count))
	}
	whereText := strings.Join(where, " AND ")
	if len(where) > 1 {
		whereText = "(" + where[0] + ") AND " + where[1]
	}

	orderBy, err := rc.orderBy(q)
	if err != nil {
		return SelectParts{}, err
	}

	return SelectParts{
		Distinct: rc.tree.Distinct,
		Columns:  rc.columns,
		From:     root.Desc.Table + " " + rootAlias,
		Joins:    rc.joins,
		Where:    whereText,
		OrderBy:  orderBy,
	}, nil
}

// alias returns the memoized alias for a node, assigning the next one on
// first use. Embedded nodes share their parent's alias.
func (rc *renderContext) alias(n *jointree.Node) string {
	if n.SharesAlias() {
		return rc.alias(n.Parent)
	}
	if a, ok := rc.aliases[n.Path]; ok {
		return a
	}
	a := fmt.Sprintf("t%d", rc.nextAlias)
	rc.nextAlias++
	rc.aliases[n.Path] = a
	return a
}

func (rc *renderContext) pushAlias(a string) { rc.stack = append(rc.stack, a) }

func (rc *renderContext) peekAlias() string { return rc.stack[len(rc.stack)-1] }

func (rc *renderContext) popAlias() { rc.stack = rc.stack[:len(rc.stack)-1] }

func (rc *renderContext) renderNode(n *jointree.Node) error {
	a := rc.alias(n)
	if n.Parent != nil && !n.SharesAlias() {
		if err := rc.joinNode(n, rc.peekAlias(), a); err != nil {
			return err
		}
	}

	rc.pushAlias(a)
	rc.emitColumns(n)
	for _, child := range n.Children {
		if err := rc.renderNode(child); err != nil {
			return err
		}
	}
	rc.popAlias()
	return nil
}

// emitColumns appends a node's columns: ids, discriminator, properties,
// then reference keys.
func (rc *renderContext) emitColumns(n *jointree.Node) {
	if n.FilterOnly {
		return
	}
	a := rc.peekAlias()
	for _, p := range n.IDProps {
		rc.columns = append(rc.columns, a+"."+p.Column)
	}
	if n.Discriminator != nil {
		rc.columns = append(rc.columns, a+"."+n.Discriminator.Column)
	}
	for _, p := range n.Props {
		rc.columns = append(rc.columns, rc.propertyExpr(a, p))
	}
	for _, r := range n.RefProps {
		for _, col := range r.Columns {
			rc.columns = append(rc.columns, a+"."+col)
		}
	}
}

// propertyExpr returns the column or substituted formula for p, adding any
// formula join.
func (rc *renderContext) propertyExpr(alias string, p meta.Property) string {
	if !p.IsFormula() {
		return alias + "." + p.Column
	}
	if p.FormulaJoin != "" {
		join := strings.ReplaceAll(p.FormulaJoin, meta.AliasPlaceholder, alias)
		if !rc.seen[join] {
			rc.seen[join] = true
			rc.joins = append(rc.joins, join)
		}
	}
	return strings.ReplaceAll(p.Formula, meta.AliasPlaceholder, alias)
}

func (rc *renderContext) joinNode(n *jointree.Node, parentAlias, a string) error {
	kw := "JOIN"
	if n.Outer {
		kw = "LEFT JOIN"
	}

	switch n.Kind {
	case jointree.KindSecondary:
		sec := n.Secondary
		rc.addJoin(kw, sec.Table, parentAlias, a, onClause(a, sec.ForeignColumns, parentAlias, sec.LocalColumns))
	case jointree.KindBean, jointree.KindCollection:
		assoc := n.Assoc
		if assoc.IsManyToMany() {
			inter := assoc.Intersection
			interAlias := a + "x"
			rc.addJoin(kw, inter.Table, parentAlias, interAlias,
				onClause(interAlias, inter.LocalColumns, parentAlias, assoc.LocalColumns))
			rc.addJoin(kw, n.Desc.Table, interAlias, a,
				onClause(a, assoc.ForeignColumns, interAlias, inter.ForeignColumns))
			return nil
		}
		rc.addJoin(kw, n.Desc.Table, parentAlias, a, onClause(a, assoc.ForeignColumns, parentAlias, assoc.LocalColumns))
	default:
		return fmt.Errorf("node %q: cannot join %s node", n.Path, n.Kind)
	}
	return nil
}

// addJoin emits a join once per table and alias pair.
func (rc *renderContext) addJoin(kw, table, leftAlias, rightAlias, on string) {
	key := table + "-" + leftAlias + "-" + rightAlias
	if rc.seen[key] {
		return
	}
	rc.seen[key] = true
	rc.joins = append(rc.joins, fmt.Sprintf("%s %s %s ON %s", kw, table, rightAlias, on))
}

func onClause(leftAlias string, leftCols []string, rightAlias string, rightCols []string) string {
	conds := make([]string, len(leftCols))
	for i := range leftCols {
		conds[i] = fmt.Sprintf("%s.%s = %s.%s", leftAlias, leftCols[i], rightAlias, rightCols[i])
	}
	return strings.Join(conds, " AND ")
}

// rewrite substitutes {path.property} references with column expressions.
func (rc *renderContext) rewrite(text string) (string, error) {
	var missing string
	out := jointree.ReplaceReferences(text, func(ref string) string {
		r, ok := rc.tree.Refs[ref]
		if !ok {
			if missing == "" {
				missing = ref
			}
			return ref
		}
		return rc.propertyExpr(rc.alias(r.Node), r.Prop)
	})
	if missing != "" {
		return "", &jointree.UnknownPropertyError{Path: missing, Type: rc.tree.Type}
	}
	return out, nil
}

func (rc *renderContext) linkPredicate(count int) string {
	link := rc.tree.Link
	cols := rc.columns[:rc.linkColumns]
	if count < 1 {
		count = 1
	}

	tuple := "?"
	lhs := cols[0]
	if len(cols) > 1 {
		tuple = "(" + strings.TrimSuffix(strings.Repeat("?, ", len(link.Columns)), ", ") + ")"
		lhs = "(" + strings.Join(cols, ", ") + ")"
	}
	tuples := make([]string, count)
	for i := range tuples {
		tuples[i] = tuple
	}
	return lhs + " IN (" + strings.Join(tuples, ", ") + ")"
}

// orderBy returns the rewritten order-by text plus implicit id ordering.
// Ids are appended when an eager collection is joined (rows of one parent
// must be contiguous) or when the query is paged (windows must be stable).
func (rc *renderContext) orderBy(q *queryir.Query) (string, error) {
	var terms []string
	if strings.TrimSpace(q.OrderBy) != "" {
		text, err := rc.rewrite(q.OrderBy)
		if err != nil {
			return "", err
		}
		terms = append(terms, text)
	}

	var idNodes []*jointree.Node
	if coll := rc.tree.EagerCollection(); coll != nil {
		for n := coll.Parent; n != nil; n = n.Parent {
			idNodes = append([]*jointree.Node{n}, idNodes...)
		}
	} else if q.Paged() {
		idNodes = []*jointree.Node{rc.tree.Root}
	}

	existing := strings.Join(terms, ", ")
	for _, n := range idNodes {
		a := rc.alias(n)
		for _, p := range n.IDProps {
			col := a + "." + p.Column
			if containsTerm(existing, col) {
				continue
			}
			terms = append(terms, col)
		}
	}
	return strings.Join(terms, ", "), nil
}

// containsTerm reports whether col appears in text as a whole expression.
func containsTerm(text, col string) bool {
	for i := 0; ; {
		idx := strings.Index(text[i:], col)
		if idx < 0 {
			return false
		}
		end := i + idx + len(col)
		if end == len(text) || !isIdentByte(text[end]) {
			return true
		}
		i = end
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
