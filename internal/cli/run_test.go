package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beanplan/internal/testutil"
)

const fixtureDataset = "testdata/dataset.yaml"

// runWithIDs runs a query with sequential execution ids.
func runWithIDs(t *testing.T, opts *RunOptions, queryFile string) (string, error) {
	t.Helper()
	opts.IDGenerator = testutil.NewSequentialIDs("")
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	err := runQuery(opts, queryFile, cmd)
	return out.String(), err
}

func decodeRun(t *testing.T, out string) (CLIResponse, RunOutput) {
	t.Helper()
	var resp struct {
		CLIResponse
		Data RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.CLIResponse, resp.Data
}

func TestRunLazyTouch(t *testing.T) {
	out, err := runWithIDs(t, &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Model:       fixtureModel,
		Dataset:     fixtureDataset,
		Touch:       []string{"contacts"},
	}, "testdata/queries/customer_contacts.yaml")
	require.NoError(t, err)

	resp, run := decodeRun(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "exec-0001", resp.ExecutionID)
	assert.Equal(t, "exec-0001", run.ExecutionID)
	assert.False(t, run.HasMore)

	require.Len(t, run.Beans, 2)
	assert.Equal(t, "Customer", run.Beans[0]["$type"])
	assert.Equal(t, "Acme", run.Beans[0]["name"])
	assert.Len(t, run.Beans[0]["contacts"], 2)
	assert.Equal(t, "Globex", run.Beans[1]["name"])
	assert.Len(t, run.Beans[1]["contacts"], 1)

	require.Len(t, run.Statements, 2, "one primary statement and one batch for the lazy path")
	assert.Equal(t, "", run.Statements[0].Path)
	assert.Equal(t, "SELECT t0.id, t0.name FROM customer t0 WHERE t0.status = ?", run.Statements[0].SQL)
	assert.Equal(t, []any{"ACTIVE"}, run.Statements[0].Args)
	assert.Equal(t, 2, run.Statements[0].Rows)

	assert.Equal(t, "contacts", run.Statements[1].Path)
	assert.Contains(t, run.Statements[1].SQL, "FROM contact t0 WHERE t0.customer_id IN (")
	assert.Equal(t, 3, run.Statements[1].Rows)
	assert.Greater(t, run.Statements[1].Seq, run.Statements[0].Seq)

	require.Len(t, run.Plans, 2)
	byType := map[string]PlanStatsOutput{}
	for _, p := range run.Plans {
		byType[p.Type] = p
	}
	assert.Equal(t, int64(1), byType["Customer"].Count)
	assert.Equal(t, int64(2), byType["Customer"].Rows)
	assert.Equal(t, int64(3), byType["Contact"].Rows)
}

func TestRunWithoutTouchLeavesLazyPathUnloaded(t *testing.T) {
	out, err := runWithIDs(t, &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Model:       fixtureModel,
		Dataset:     fixtureDataset,
	}, "testdata/queries/customer_contacts.yaml")
	require.NoError(t, err)

	_, run := decodeRun(t, out)
	require.Len(t, run.Beans, 2)
	contacts, ok := run.Beans[0]["contacts"].(map[string]any)
	require.True(t, ok, "unloaded collection renders as a state marker")
	assert.Contains(t, contacts, "$state")
	assert.Len(t, run.Statements, 1)
}

func TestRunEagerAndQueryJoins(t *testing.T) {
	out, err := runWithIDs(t, &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Model:       fixtureModel,
		Dataset:     fixtureDataset,
	}, "testdata/queries/orders_with_lines.yaml")
	require.NoError(t, err)

	_, run := decodeRun(t, out)
	require.Len(t, run.Beans, 3)
	assert.Len(t, run.Beans[0]["lines"], 2)
	assert.Len(t, run.Beans[1]["lines"], 0)
	assert.Len(t, run.Beans[2]["lines"], 1)

	customer, ok := run.Beans[0]["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme", customer["name"])

	require.Len(t, run.Statements, 2)
	assert.Equal(t, "customer", run.Statements[1].Path)
	assert.Equal(t, 2, run.Statements[1].Rows, "two distinct customers in one batch")
}

func TestRunTextOutput(t *testing.T) {
	out, err := runWithIDs(t, &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Model:       fixtureModel,
		Dataset:     fixtureDataset,
		Touch:       []string{"contacts"},
	}, "testdata/queries/customer_contacts.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ 2 bean(s) [exec-0001]")
	assert.Contains(t, out, `"name":"Acme"`)
	assert.Contains(t, out, "Statements (2):")
	assert.Contains(t, out, "  [1] (primary): SELECT t0.id, t0.name FROM customer t0 WHERE t0.status = ? [ACTIVE] → 2 row(s)")
	assert.Contains(t, out, "] contacts: SELECT ")
	assert.Contains(t, out, "Plans (2):")
	assert.Contains(t, out, " Customer: 1 execution(s), 2 row(s)")
}

func TestRunThroughRootWithConfigFile(t *testing.T) {
	out, _, err := execute(t, NewRootCommand(),
		"run", "--config", "testdata/beanplan.yaml", "--format", "json",
		"testdata/queries/customer_contacts.yaml", "--touch", "contacts")
	require.NoError(t, err)

	resp, run := decodeRun(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Len(t, run.Beans, 2)
	assert.Len(t, run.Statements, 2)
}

func TestRunErrors(t *testing.T) {
	t.Run("unknown touch path", func(t *testing.T) {
		out, err := runWithIDs(t, &RunOptions{
			RootOptions: &RootOptions{Format: "json"},
			Model:       fixtureModel,
			Dataset:     fixtureDataset,
			Touch:       []string{"invoices"},
		}, "testdata/queries/customer_contacts.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		resp, run := decodeRun(t, out)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeExecFailed, resp.Error.Code)
		assert.Len(t, run.Beans, 2, "the loaded graph is still reported")
	})

	t.Run("missing tables", func(t *testing.T) {
		out, err := runWithIDs(t, &RunOptions{
			RootOptions: &RootOptions{Format: "text"},
			Model:       fixtureModel,
		}, "testdata/queries/customer_contacts.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error ["+ErrCodeExecFailed+"]")
		assert.Contains(t, out, "Statements (0):")
	})

	t.Run("missing dataset", func(t *testing.T) {
		_, err := runWithIDs(t, &RunOptions{
			RootOptions: &RootOptions{Format: "text"},
			Model:       fixtureModel,
			Dataset:     "testdata/nope.yaml",
		}, "testdata/queries/customer_contacts.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to read dataset")
	})
}
