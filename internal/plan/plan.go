package plan

import (
	"github.com/roach88/beanplan/internal/jointree"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/querysql"
)

// QueryPlan is the cached result of planning one query shape.
type QueryPlan struct {
	Key  Key
	Type string
	SQL  string
	Tree *jointree.Tree

	Columns     []string
	LinkColumns int
	Paged       bool
	Distinct    bool
	LimitOrder  querysql.LimitOrder

	stats Stats
}

// Stats returns the plan's statistics cell.
func (p *QueryPlan) Stats() *Stats {
	return &p.stats
}

// Args assembles the bind arguments for one execution of the plan: the
// query parameters, then the flattened link keys, then paging values.
//
// The row limit is bound as MaxRows+1 so the caller can tell whether more
// rows exist beyond the window.
func (p *QueryPlan) Args(q *queryir.Query, linkKeys [][]any) []any {
	args := make([]any, 0, len(q.Params)+len(linkKeys)*p.LinkColumns+len(p.LimitOrder))
	args = append(args, q.Params...)
	for _, k := range linkKeys {
		args = append(args, k...)
	}
	for _, a := range p.LimitOrder {
		switch a {
		case querysql.ArgLimit:
			args = append(args, q.MaxRows+1)
		case querysql.ArgOffset:
			args = append(args, q.FirstRow)
		case querysql.ArgLastRow:
			args = append(args, q.FirstRow+q.MaxRows+1)
		}
	}
	return args
}
