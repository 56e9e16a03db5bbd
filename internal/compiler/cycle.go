package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/beanplan/internal/meta"
)

// CycleWarning reports entity types that reference each other through
// mandatory to-one associations.
//
// Cycles are warnings, not errors: they are legal metadata, but an eager
// fetch can never follow the whole cycle and rows must be inserted with
// deferred constraints.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["Order", "Customer", "Order"]
	Edges   []string `json:"edges"`   // ["Order.customer", "Customer.lastOrder"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles finds mandatory reference cycles between entity types.
//
// The algorithm:
//  1. Build a type graph with one edge per non-optional to-one association
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a warning
//
// Output is deterministic: nodes and edges are visited in sorted order.
func AnalyzeCycles(descs []*meta.Descriptor) []CycleWarning {
	graph := buildReferenceGraph(descs)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// edge is one mandatory reference: Owner.Via → To.
type edge struct {
	To  string
	Via string
}

// referenceGraph maps a type name to its mandatory references.
type referenceGraph map[string][]edge

func buildReferenceGraph(descs []*meta.Descriptor) referenceGraph {
	graph := make(referenceGraph)
	for _, d := range descs {
		if graph[d.Name] == nil {
			graph[d.Name] = []edge{}
		}
		for _, a := range d.Assocs {
			if a.Kind != meta.AssocOne || a.Optional {
				continue
			}
			graph[d.Name] = append(graph[d.Name], edge{To: a.Target, Via: d.Name + "." + a.Name})
		}
		slices.SortFunc(graph[d.Name], func(a, b edge) int {
			return strings.Compare(a.Via, b.Via)
		})
	}
	return graph
}

func (g referenceGraph) nodes() []string {
	names := make([]string, 0, len(g))
	for n := range g {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph referenceGraph) bool {
	for _, e := range graph[node] {
		if e.To == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph referenceGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range graph[v] {
			w := e.To
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes() {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph referenceGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		var via string
		for _, e := range graph[name] {
			if e.To == name {
				via = e.Via
				break
			}
		}
		return CycleWarning{
			Path:    []string{name, name},
			Edges:   []string{via},
			Message: fmt.Sprintf("Self-referencing mandatory association: %s", via),
			Level:   "warning",
		}
	}

	path, edges := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Edges:   edges,
		Message: fmt.Sprintf("Mandatory reference cycle: %s", strings.Join(edges, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks from the first SCC member along edges inside
// the SCC until it returns to the start.
func reconstructCyclePath(scc []string, graph referenceGraph) ([]string, []string) {
	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	var edges []string
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next edge
		for _, e := range graph[current] {
			if inSCC[e.To] && (!visited[e.To] || e.To == start) {
				next = e
				break
			}
		}
		if next.To == "" {
			break
		}

		path = append(path, next.To)
		edges = append(edges, next.Via)
		if next.To == start {
			break
		}
		current = next.To
	}
	return path, edges
}
