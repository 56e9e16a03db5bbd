package store

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset is a schema plus rows, loaded from YAML:
//
//	schema:
//	  - CREATE TABLE customer (id INTEGER PRIMARY KEY, name TEXT)
//	tables:
//	  - name: customer
//	    rows:
//	      - {id: 1, name: Acme}
//
// Tables are inserted in file order so foreign keys can be satisfied.
type Dataset struct {
	Schema []string    `yaml:"schema"`
	Tables []TableRows `yaml:"tables"`
}

// TableRows holds the rows for one table.
type TableRows struct {
	Name string           `yaml:"name"`
	Rows []map[string]any `yaml:"rows"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseDataset decodes a YAML dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	for _, t := range ds.Tables {
		if !identifier.MatchString(t.Name) {
			return nil, fmt.Errorf("dataset: invalid table name %q", t.Name)
		}
		for i, row := range t.Rows {
			for col := range row {
				if !identifier.MatchString(col) {
					return nil, fmt.Errorf("dataset: table %s row %d: invalid column name %q", t.Name, i+1, col)
				}
			}
		}
	}
	return &ds, nil
}

// LoadDatasetFile reads and decodes a YAML dataset file.
func LoadDatasetFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(data)
}

// LoadDataset applies the dataset's schema and inserts its rows.
func (s *Store) LoadDataset(ctx context.Context, ds *Dataset) error {
	if err := s.ApplySchema(ctx, ds.Schema); err != nil {
		return err
	}

	var stmts []statement
	for _, t := range ds.Tables {
		for _, row := range t.Rows {
			stmts = append(stmts, insertRow(t.Name, row))
		}
	}
	return s.execAll(ctx, stmts)
}

// Seed runs literal statements, typically INSERTs, in one transaction.
func (s *Store) Seed(ctx context.Context, stmts []string) error {
	out := make([]statement, len(stmts))
	for i, sql := range stmts {
		out[i] = statement{sql: sql}
	}
	return s.execAll(ctx, out)
}

type statement struct {
	sql  string
	args []any
}

func (s *Store) execAll(ctx context.Context, stmts []statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("seed: %s: %w", st.sql, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: commit: %w", err)
	}
	return nil
}

// insertRow builds an INSERT with columns in sorted order.
func insertRow(table string, row map[string]any) statement {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		args[i] = row[c]
		marks[i] = "?"
	}
	return statement{
		sql:  fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		args: args,
	}
}
