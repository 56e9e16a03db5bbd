package plan

import (
	"fmt"
	"sort"

	"github.com/roach88/beanplan/internal/ir"
	"github.com/roach88/beanplan/internal/queryir"
	"github.com/roach88/beanplan/internal/querysql"
)

// Key identifies a query shape.
type Key string

// KeyOf computes the plan key of q for the named dialect and render
// options. Planners sharing a cache therefore never see each other's SQL.
func KeyOf(q *queryir.Query, dialect string, opts querysql.Options) (Key, error) {
	shape := map[string]any{
		"v":              ir.KeyVersion,
		"dialect":        dialect,
		"column_aliases": opts.ColumnAliases,
		"type":           q.Type,
		"select":         selectionShape(q.Select),
		"joins":          joinsShape(q.Joins),
		"where":          q.Where,
		"order_by":       q.OrderBy,
		"has_first_row":  q.FirstRow > 0,
		"has_max_rows":   q.MaxRows > 0,
	}
	if q.Link != nil {
		shape["link"] = map[string]any{
			"owner":    q.Link.Owner,
			"property": q.Link.Property,
			"count":    q.Link.Count,
		}
	}

	h, err := ir.Hash(ir.DomainPlan, shape)
	if err != nil {
		return "", fmt.Errorf("plan key for %s: %w", q.Type, err)
	}
	return Key(h), nil
}

func selectionShape(sel queryir.PropertySelection) map[string]any {
	props := make([]any, len(sel.Properties))
	for i, p := range sel.Properties {
		props[i] = p
	}
	return map[string]any{"all": sel.All, "props": props}
}

// joinsShape sorts joins by path: the order joins are listed in does not
// change the plan.
func joinsShape(joins []queryir.JoinSpec) []any {
	sorted := make([]queryir.JoinSpec, len(joins))
	copy(sorted, joins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	out := make([]any, len(sorted))
	for i, j := range sorted {
		out[i] = map[string]any{
			"path":   j.Path,
			"mode":   j.Mode.String(),
			"batch":  j.BatchSize,
			"select": selectionShape(j.Select),
		}
	}
	return out
}
