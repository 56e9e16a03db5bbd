package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beanplan/internal/config"
	"github.com/roach88/beanplan/internal/queryir"
)

// Scenario defines a query scenario: a model, a dataset and a sequence of
// queries whose statements and results are checked.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the CUE entity definition file or directory.
	// Relative to the scenario file.
	Model string `yaml:"model"`

	// Dataset is the YAML dataset seeded into a fresh in-memory database.
	// Relative to the scenario file.
	Dataset string `yaml:"dataset"`

	// Config overrides engine settings, using the config file keys.
	Config yaml.Node `yaml:"config,omitempty"`

	// Steps run in order, each as its own top-level execution.
	Steps []Step `yaml:"steps"`

	// Assertions validate the statement trace of the whole scenario.
	// Supported types: statement_count, statement_contains, statement_order
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step runs one query.
type Step struct {
	// Query uses the query file format (see queryir.ParseYAML).
	Query yaml.Node `yaml:"query"`

	// Touch lists dot paths read on every root after the query returns,
	// the way calling code reads lazy associations.
	Touch []string `yaml:"touch,omitempty"`

	// Expect validates the step result. If nil, the step must only succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Count is the expected number of roots.
	Count *int `yaml:"count,omitempty"`

	// HasMore is the expected paging flag.
	HasMore *bool `yaml:"has_more,omitempty"`

	// Error, when set, expects the step to fail with a message containing it.
	Error string `yaml:"error,omitempty"`

	// Beans are matched against the root snapshots by position.
	// This is a subset match - only specified fields are validated.
	Beans []map[string]any `yaml:"beans,omitempty"`
}

// Assertion validates the statement trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "statement_count": exactly Count statements (on Path, when set)
	// - "statement_contains": a statement whose SQL contains SQL
	// - "statement_order": statement paths appear in the order of Paths
	Type string `yaml:"type"`

	// Path restricts statement_count and statement_contains to one
	// load path. Use "" for primary statements.
	Path *string `yaml:"path,omitempty"`

	// SQL is the expected SQL fragment (used by statement_contains).
	SQL string `yaml:"sql,omitempty"`

	// Args are the exact bind values expected (used by statement_contains).
	Args []any `yaml:"args,omitempty"`

	// Count is the expected number of statements (used by statement_count).
	Count int `yaml:"count,omitempty"`

	// Paths is the expected path order (used by statement_order).
	Paths []string `yaml:"paths,omitempty"`
}

// Assertion type constants.
const (
	AssertStatementCount    = "statement_count"
	AssertStatementContains = "statement_contains"
	AssertStatementOrder    = "statement_order"
)

// LoadScenario reads and parses a scenario YAML file. Model and dataset
// paths are resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving model and dataset paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario decodes a scenario. Relative paths resolve against
// basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Model = resolvePath(basePath, scenario.Model)
	scenario.Dataset = resolvePath(basePath, scenario.Dataset)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// EngineConfig returns the default configuration with the scenario's
// overrides applied.
func (s *Scenario) EngineConfig() (*config.Config, error) {
	if s.Config.Kind == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(&s.Config)
	if err != nil {
		return nil, err
	}
	return config.Parse(data)
}

// ParseQuery decodes the step's query.
func (st *Step) ParseQuery() (*queryir.Query, error) {
	data, err := yaml.Marshal(&st.Query)
	if err != nil {
		return nil, err
	}
	return queryir.ParseYAML(data)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validIdentifier.MatchString(s.Name) {
		return fmt.Errorf("name %q must be an identifier (it names the golden file)", s.Name)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model not found: %s", s.Model)
	}

	if s.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if _, err := os.Stat(s.Dataset); os.IsNotExist(err) {
		return fmt.Errorf("dataset not found: %s", s.Dataset)
	}

	if _, err := s.EngineConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Query.Kind == 0 {
			return fmt.Errorf("steps[%d]: query is required", i)
		}
		q, err := step.ParseQuery()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if q.Type == "" {
			return fmt.Errorf("steps[%d]: query type is required", i)
		}
		for j, path := range step.Touch {
			if path == "" {
				return fmt.Errorf("steps[%d].touch[%d]: path is empty", i, j)
			}
		}
		if step.Expect != nil && step.Expect.Count != nil && *step.Expect.Count < 0 {
			return fmt.Errorf("steps[%d].expect: count must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	case AssertStatementContains:
		if a.SQL == "" {
			return fmt.Errorf("assertions[%d]: sql is required for statement_contains", index)
		}
	case AssertStatementOrder:
		if len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: paths list is required for statement_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
