package harness

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// validIdentifier matches scenario names. Names become golden file names,
// so only letters, digits and underscores are allowed.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s: %s %v\n", ev.Seq, ev.Step, displayPath(ev.Path), ev.SQL, ev.Args)
		}
	}
	return buf.String()
}

func displayPath(path string) string {
	if path == "" {
		return "(primary)"
	}
	return path
}

func onPath(ev TraceEvent, path *string) bool {
	return path == nil || ev.Path == *path
}

// assertStatementContains checks that some statement's SQL contains the
// fragment, with matching args when given.
func assertStatementContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if !onPath(ev, a.Path) || !strings.Contains(ev.SQL, a.SQL) {
			continue
		}
		if a.Args == nil || valuesEqual(ev.Args, a.Args) {
			return nil
		}
	}

	expected := fmt.Sprintf("statement containing %q", a.SQL)
	if a.Path != nil {
		expected += " on path " + displayPath(*a.Path)
	}
	if a.Args != nil {
		expected += fmt.Sprintf(" with args %v", a.Args)
	}
	return &AssertionError{
		Type:     AssertStatementContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertStatementOrder checks that paths first appear in the given order.
// Paths don't need to be consecutive (intervening statements are allowed).
func assertStatementOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Path]; !seen {
			positions[ev.Path] = i + 1 // 1-indexed for readability
		}
	}

	for _, path := range a.Paths {
		if positions[path] == 0 {
			return &AssertionError{
				Type:     AssertStatementOrder,
				Expected: fmt.Sprintf("all paths present: %q", a.Paths),
				Actual:   fmt.Sprintf("missing path: %s", displayPath(path)),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Paths); i++ {
		prev, curr := a.Paths[i-1], a.Paths[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertStatementOrder,
				Expected: fmt.Sprintf("paths in order: %q", a.Paths),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					displayPath(prev), positions[prev], displayPath(curr), positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertStatementCount checks the exact number of statements.
func assertStatementCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if onPath(ev, a.Path) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}

	expected := fmt.Sprintf("%d statements", a.Count)
	if a.Path != nil {
		expected += " on path " + displayPath(*a.Path)
	}
	return &AssertionError{
		Type:     AssertStatementCount,
		Expected: expected,
		Actual:   fmt.Sprintf("%d statements", count),
		Trace:    trace,
	}
}

// checkExpect validates one step against its expect clause and returns
// the failure messages.
func checkExpect(index int, step StepResult, expect *ExpectClause) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d]: ", index)+fmt.Sprintf(format, args...))
	}

	if expect == nil {
		if step.Err != "" {
			fail("unexpected error: %s", step.Err)
		}
		return errs
	}

	if expect.Error != "" {
		switch {
		case step.Err == "":
			fail("expected error containing %q, got success", expect.Error)
		case !strings.Contains(step.Err, expect.Error):
			fail("expected error containing %q, got %q", expect.Error, step.Err)
		}
		return errs
	}
	if step.Err != "" {
		fail("unexpected error: %s", step.Err)
		return errs
	}

	if expect.Count != nil && *expect.Count != len(step.Beans) {
		fail("expected %d beans, got %d", *expect.Count, len(step.Beans))
	}
	if expect.HasMore != nil && *expect.HasMore != step.HasMore {
		fail("expected has_more %t, got %t", *expect.HasMore, step.HasMore)
	}
	for i, want := range expect.Beans {
		if i >= len(step.Beans) {
			fail("beans[%d]: missing, only %d beans returned", i, len(step.Beans))
			break
		}
		if !matchFields(step.Beans[i], want) {
			fail("beans[%d]: expected fields %v, got %v", i, formatMap(want), formatMap(step.Beans[i]))
		}
	}
	return errs
}

// matchFields checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchFields(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares a snapshot value with a YAML-decoded expectation.
// Maps compare as subsets, lists element by element, and integers compare
// across Go integer types.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchFields(act, exp)
	case []any:
		act, ok := toList(actual)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	if ei, ok := toInt64(expected); ok {
		ai, ok := toInt64(actual)
		return ok && ai == ei
	}
	return reflect.DeepEqual(actual, expected)
}

func toList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		// YAML may decode large integers as float64
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// formatMap renders a map with sorted keys for stable messages.
func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatementCount:
			err = assertStatementCount(result.Trace, assertion)
		case AssertStatementContains:
			err = assertStatementContains(result.Trace, assertion)
		case AssertStatementOrder:
			err = assertStatementOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
