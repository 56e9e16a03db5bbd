package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFixtureModel(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), fixtureModel)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Model valid: 4 entities")
	assert.NotContains(t, out, "⚠")
}

func TestValidateFixtureModelJSON(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), fixtureModel)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 4, resp.Data.Entities)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateNonExistentModel(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/model.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateNoModelConfigured(t *testing.T) {
	_, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model given")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	model := writeModel(t, `
entity: Customer: {
	table: "customer"
	properties: {
		id:   {column: "id", id: true}
		name: "name"
	}
	associations: {
		invoices: {kind: "many", target: "Invoice", local: ["id"], foreign: ["customer_id"]}
	}
	default: ["name", "nickname"]
}

entity: Broken: {
	properties: id: {column: "id", id: true}
}
`)

	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), model)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrCodeEntityTable, "E107", "E106"}, codes)
}

func TestValidateTextErrors(t *testing.T) {
	model := writeModel(t, `
entity: Customer: {
	table: "customer"
	properties: {
		id: {column: "id", id: true}
	}
	associations: {
		invoices: {kind: "many", target: "Invoice", local: ["id"], foreign: ["customer_id"]}
	}
}
`)

	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), model)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, `E107: Customer.associations.invoices: unknown target entity "Invoice"`)
}

func TestValidateCycleWarnings(t *testing.T) {
	model := writeModel(t, `
entity: Employee: {
	table: "employee"
	properties: {
		id:   {column: "id", id: true}
		name: "name"
	}
	associations: {
		manager: {kind: "one", target: "Employee", local: ["manager_id"], foreign: ["id"]}
	}
}
`)

	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), model)
	require.NoError(t, err, "cycles are warnings")
	assert.Contains(t, out, "✓ Model valid: 1 entities")
	assert.Contains(t, out, "⚠ Self-referencing mandatory association: Employee.manager")
}

func TestValidateVerboseOutput(t *testing.T) {
	_, errOut, err := execute(t, NewValidateCommand(&RootOptions{Format: "json", Verbose: true}), fixtureModel)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Validating entity: Customer")
	assert.Contains(t, errOut, "Validating entity: OrderLine")
}
