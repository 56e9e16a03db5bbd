package harness

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/beanplan/internal/ir"
)

// TraceSnapshot captures the statements and results of a scenario run.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot into plain values accepted by
// ir.MarshalCanonical. Nil map values are dropped since canonical JSON has
// no null.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Result.Steps))
	for i, step := range s.Result.Steps {
		statements := []any{}
		for _, ev := range s.Result.StepTrace(i) {
			statements = append(statements, map[string]any{
				"seq":  ev.Seq,
				"path": ev.Path,
				"sql":  ev.SQL,
				"args": canonicalValue(ev.Args),
				"rows": ev.Rows,
			})
		}

		beans := make([]any, len(step.Beans))
		for j, b := range step.Beans {
			beans[j] = canonicalValue(b)
		}

		stepMap := map[string]any{
			"execution":  step.ExecutionID,
			"beans":      beans,
			"has_more":   step.HasMore,
			"statements": statements,
		}
		if step.Err != "" {
			stepMap["error"] = step.Err
		}
		steps[i] = stepMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
	}
}

// canonicalValue converts driver and snapshot values into the types
// ir.FromGo accepts.
func canonicalValue(v any) any {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string, bool, int, int64, int32:
		return val
	case []byte:
		return string(val)
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if item == nil {
				continue
			}
			out[k] = canonicalValue(item)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}

// MarshalSnapshot returns the canonical JSON compared against golden files.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against a golden
// file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
