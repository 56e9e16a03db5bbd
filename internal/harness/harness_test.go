package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err, "failed to load scenario %s", name)
	return scenario
}

// TestScenarios runs the scenarios under testdata/scenarios. Those with a
// golden file are compared against it.
func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		golden bool
	}{
		{name: "eager_contacts", golden: true},
		{name: "query_join_orders", golden: true},
		{name: "lazy_customer_touch", golden: true},
		{name: "paged_customers", golden: true},
		{name: "nested_query_joins"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := loadTestScenario(t, tt.name)
			assert.Equal(t, tt.name, scenario.Name)

			var result *Result
			var err error
			if tt.golden {
				result, err = RunWithGolden(t, scenario)
			} else {
				result, err = Run(scenario)
			}
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Steps, len(scenario.Steps))
		})
	}
}

func TestRun_TraceAndSteps(t *testing.T) {
	result, err := Run(loadTestScenario(t, "nested_query_joins"))
	require.NoError(t, err)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, []string{"", "orders", "orders.lines"},
		[]string{result.Trace[0].Path, result.Trace[1].Path, result.Trace[2].Path})
	for i, ev := range result.Trace {
		assert.Equal(t, 0, ev.Step)
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Contains(t, result.Trace[2].SQL, "FROM order_line t0 WHERE t0.order_id IN (")

	require.Len(t, result.Steps, 2)
	assert.Equal(t, "exec-0001", result.Steps[0].ExecutionID)
	assert.Empty(t, result.Steps[0].Err)
	assert.Equal(t, "exec-0002", result.Steps[1].ExecutionID)
	assert.Contains(t, result.Steps[1].Err, "invoices")
	assert.Empty(t, result.Steps[1].Beans)
	assert.Empty(t, result.StepTrace(1))
}

func TestRun_FailedExpectations(t *testing.T) {
	scenario := loadTestScenario(t, "query_join_orders")
	count := 2
	more := true
	scenario.Steps[0].Expect = &ExpectClause{
		Count:   &count,
		HasMore: &more,
		Beans:   []map[string]any{{"id": 1, "name": "Globex"}},
	}
	scenario.Assertions = []Assertion{{Type: AssertStatementCount, Count: 5}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected 2 beans, got 3")
	assert.Contains(t, result.Errors[1], "expected has_more true, got false")
	assert.Contains(t, result.Errors[2], "beans[0]: expected fields")
	assert.Contains(t, result.Errors[3], "Assertion failed: statement_count")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := loadTestScenario(t, "nested_query_joins")
	scenario.Steps[1].Expect = nil
	scenario.Assertions = nil

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1]: unexpected error")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := loadTestScenario(t, "eager_contacts")
	scenario.Steps[0].Expect = &ExpectClause{Error: "boom"}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "boom", got success`)
}

func TestRun_ConfigOverrides(t *testing.T) {
	scenario := loadTestScenario(t, "nested_query_joins")
	cfg, err := scenario.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.DefaultBatchSize)
	assert.Equal(t, 10, cfg.LazyBatchSize)
}

func TestRun_BadModel(t *testing.T) {
	scenario := loadTestScenario(t, "eager_contacts")
	scenario.Model = filepath.Join("testdata", "dataset.yaml")

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}
