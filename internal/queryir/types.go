package queryir

import (
	"fmt"
	"slices"
	"strings"
)

// FetchMode controls how a joined path is loaded.
type FetchMode int

const (
	// FetchEager joins the path into the primary statement.
	FetchEager FetchMode = iota
	// FetchQuery loads the path with a secondary batched statement issued
	// immediately after the primary statement.
	FetchQuery
	// FetchLazy loads the path with a batched statement on first access.
	FetchLazy
)

// String returns the mode as written in query files.
func (m FetchMode) String() string {
	switch m {
	case FetchEager:
		return "eager"
	case FetchQuery:
		return "query"
	case FetchLazy:
		return "lazy"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

// Deferred reports whether the mode loads outside the primary statement.
func (m FetchMode) Deferred() bool {
	return m == FetchQuery || m == FetchLazy
}

// ParseFetchMode parses "eager", "query" or "lazy".
func ParseFetchMode(s string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eager", "fetch":
		return FetchEager, nil
	case "query":
		return FetchQuery, nil
	case "lazy":
		return FetchLazy, nil
	default:
		return 0, fmt.Errorf("unknown fetch mode %q", s)
	}
}

// PropertySelection is the set of properties to fetch for one path.
//
// The zero value selects the target type's default select clause.
type PropertySelection struct {
	All        bool
	Properties []string
}

// IsDefault reports whether the selection defers to the default clause.
func (s PropertySelection) IsDefault() bool {
	return !s.All && len(s.Properties) == 0
}

// Contains reports whether name is explicitly selected.
func (s PropertySelection) Contains(name string) bool {
	return slices.Contains(s.Properties, name)
}

// Clone returns a copy that shares no backing array with s.
func (s PropertySelection) Clone() PropertySelection {
	return PropertySelection{All: s.All, Properties: slices.Clone(s.Properties)}
}

// Props is shorthand for an explicit selection.
func Props(names ...string) PropertySelection {
	return PropertySelection{Properties: names}
}

// AllProps selects every scalar property.
func AllProps() PropertySelection {
	return PropertySelection{All: true}
}

// JoinSpec requests one association path.
type JoinSpec struct {
	Path      string
	Mode      FetchMode
	BatchSize int // 0 = configured default
	Select    PropertySelection
}

// Link constrains a secondary fetch to the parents of a deferred association.
//
// The owning association's link columns are selected first on the root and
// the statement is filtered by Count parent keys.
type Link struct {
	Owner    string // owner type name
	Property string // association name on the owner
	Count    int    // number of parent keys bound
}

// Query is the description of one fetch.
type Query struct {
	Type     string
	Select   PropertySelection
	Joins    []JoinSpec
	Where    string
	OrderBy  string
	Params   []any
	FirstRow int
	MaxRows  int

	// Link is set on secondary fetches only.
	Link *Link
}

// New creates a query for the given root type.
func New(typeName string) *Query {
	return &Query{Type: typeName}
}

// SelectProps sets the root selection.
func (q *Query) SelectProps(names ...string) *Query {
	q.Select = Props(names...)
	return q
}

// Fetch adds an eager join.
func (q *Query) Fetch(path string, props ...string) *Query {
	q.Joins = append(q.Joins, JoinSpec{Path: path, Mode: FetchEager, Select: Props(props...)})
	return q
}

// FetchQuery adds a secondary query join.
func (q *Query) FetchQuery(path string, batchSize int, props ...string) *Query {
	q.Joins = append(q.Joins, JoinSpec{Path: path, Mode: FetchQuery, BatchSize: batchSize, Select: Props(props...)})
	return q
}

// FetchLazy adds a lazy join.
func (q *Query) FetchLazy(path string, batchSize int, props ...string) *Query {
	q.Joins = append(q.Joins, JoinSpec{Path: path, Mode: FetchLazy, BatchSize: batchSize, Select: Props(props...)})
	return q
}

// Filter sets the predicate text and its bind values.
func (q *Query) Filter(where string, params ...any) *Query {
	q.Where = where
	q.Params = params
	return q
}

// Order sets the order-by text.
func (q *Query) Order(orderBy string) *Query {
	q.OrderBy = orderBy
	return q
}

// Page sets the row window.
func (q *Query) Page(firstRow, maxRows int) *Query {
	q.FirstRow = firstRow
	q.MaxRows = maxRows
	return q
}

// Join returns the join spec for path.
func (q *Query) Join(path string) (JoinSpec, bool) {
	for _, j := range q.Joins {
		if j.Path == path {
			return j, true
		}
	}
	return JoinSpec{}, false
}

// Paged reports whether a row window was requested.
func (q *Query) Paged() bool {
	return q.FirstRow > 0 || q.MaxRows > 0
}

// Clone returns a deep copy of the query shape. Params are copied shallowly.
func (q *Query) Clone() *Query {
	c := *q
	c.Select = q.Select.Clone()
	c.Joins = make([]JoinSpec, len(q.Joins))
	for i, j := range q.Joins {
		j.Select = j.Select.Clone()
		c.Joins[i] = j
	}
	c.Params = slices.Clone(q.Params)
	if q.Link != nil {
		link := *q.Link
		c.Link = &link
	}
	return &c
}

// SplitPath splits a dot-delimited path into segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// ParentPath returns the path without its last segment ("" for top level).
func ParentPath(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return ""
}

// LastSegment returns the last segment of path.
func LastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// JoinPath joins a parent path and a segment.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	if name == "" {
		return parent
	}
	return parent + "." + name
}
