package queryir

import (
	"errors"
	"fmt"
	"strings"
)

// DuplicatePathError is returned when a join path is requested twice.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("join path %q requested more than once", e.Path)
}

// ValidationError lists every structural problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// IsDuplicatePath reports whether err is a DuplicatePathError.
func IsDuplicatePath(err error) bool {
	var dpe *DuplicatePathError
	return errors.As(err, &dpe)
}

// Validate checks the query shape before planning.
//
// Metadata is not consulted here: unknown properties are reported by the
// join tree builder, which knows the entity graph. Validate only rejects
// queries that could never be planned, whatever the metadata.
//
// Validate is a pure function with no side effects.
func Validate(q *Query) error {
	if q == nil {
		return &ValidationError{Problems: []string{"nil query"}}
	}

	v := &validator{seen: make(map[string]bool, len(q.Joins))}
	v.validateQuery(q)

	if v.duplicate != "" {
		return &DuplicatePathError{Path: v.duplicate}
	}
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

// validator accumulates problems during traversal.
type validator struct {
	problems  []string
	seen      map[string]bool
	duplicate string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q *Query) {
	if strings.TrimSpace(q.Type) == "" {
		v.addProblem("root type is required")
	}
	if q.FirstRow < 0 {
		v.addProblem("first row must not be negative (got %d)", q.FirstRow)
	}
	if q.MaxRows < 0 {
		v.addProblem("max rows must not be negative (got %d)", q.MaxRows)
	}
	v.validateSelection("<root>", q.Select)

	for _, j := range q.Joins {
		v.validateJoin(j)
	}

	if q.Link != nil {
		if q.Link.Owner == "" || q.Link.Property == "" {
			v.addProblem("link requires owner and property")
		}
		if q.Link.Count <= 0 {
			v.addProblem("link count must be positive (got %d)", q.Link.Count)
		}
	}

	v.validateBraces("where", q.Where)
	v.validateBraces("order by", q.OrderBy)
}

func (v *validator) validateJoin(j JoinSpec) {
	if !validPath(j.Path) {
		v.addProblem("malformed join path %q", j.Path)
		return
	}
	if v.seen[j.Path] && v.duplicate == "" {
		v.duplicate = j.Path
	}
	v.seen[j.Path] = true

	if j.Mode < FetchEager || j.Mode > FetchLazy {
		v.addProblem("join %q has unknown fetch mode %d", j.Path, int(j.Mode))
	}
	if j.BatchSize < 0 {
		v.addProblem("join %q batch size must not be negative (got %d)", j.Path, j.BatchSize)
	}
	v.validateSelection(j.Path, j.Select)
}

func (v *validator) validateSelection(path string, sel PropertySelection) {
	if sel.All && len(sel.Properties) > 0 {
		v.addProblem("selection for %s mixes all with explicit properties", path)
	}
	for _, p := range sel.Properties {
		if strings.TrimSpace(p) == "" || strings.Contains(p, ".") {
			v.addProblem("selection for %s has invalid property %q", path, p)
		}
	}
}

// validateBraces checks that property references are balanced.
func (v *validator) validateBraces(clause, text string) {
	depth := 0
	for _, r := range text {
		switch r {
		case '{':
			depth++
			if depth > 1 {
				v.addProblem("%s has nested property reference", clause)
				return
			}
		case '}':
			depth--
			if depth < 0 {
				v.addProblem("%s has unbalanced '}'", clause)
				return
			}
		}
	}
	if depth != 0 {
		v.addProblem("%s has unterminated property reference", clause)
	}
}

func validPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range SplitPath(path) {
		if strings.TrimSpace(seg) == "" || seg != strings.TrimSpace(seg) {
			return false
		}
	}
	return true
}
