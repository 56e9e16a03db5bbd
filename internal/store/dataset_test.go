package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const datasetYAML = `
schema:
  - CREATE TABLE country (code TEXT PRIMARY KEY, name TEXT NOT NULL)
  - CREATE TABLE address (id INTEGER PRIMARY KEY, city TEXT, country_code TEXT NOT NULL REFERENCES country(code))
tables:
  - name: country
    rows:
      - {code: NZ, name: New Zealand}
  - name: address
    rows:
      - {id: 1, city: Auckland, country_code: NZ}
      - {id: 2, city: Wellington, country_code: NZ}
`

func TestParseDataset(t *testing.T) {
	ds, err := ParseDataset([]byte(datasetYAML))
	if err != nil {
		t.Fatalf("ParseDataset() failed: %v", err)
	}
	if len(ds.Schema) != 2 {
		t.Errorf("schema statements = %d, want 2", len(ds.Schema))
	}
	if len(ds.Tables) != 2 || ds.Tables[1].Name != "address" || len(ds.Tables[1].Rows) != 2 {
		t.Errorf("unexpected tables: %+v", ds.Tables)
	}
}

func TestParseDataset_RejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"table", "tables:\n  - name: \"a; DROP TABLE x\"\n    rows: []\n"},
		{"column", "tables:\n  - name: a\n    rows:\n      - {\"id) VALUES (1); --\": 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDataset([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadDatasetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	if err := os.WriteFile(path, []byte(datasetYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadDatasetFile(path)
	if err != nil {
		t.Fatalf("LoadDatasetFile() failed: %v", err)
	}

	s := createTestStore(t)
	ctx := context.Background()
	if err := s.LoadDataset(ctx, ds); err != nil {
		t.Fatalf("LoadDataset() failed: %v", err)
	}

	c, err := s.Execute(ctx, "SELECT a.city, c.name FROM address a JOIN country c ON c.code = a.country_code ORDER BY a.id")
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	rows := drain(t, c)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "Auckland" || rows[0][1] != "New Zealand" {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestLoadDatasetFile_Missing(t *testing.T) {
	if _, err := LoadDatasetFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDataset_ForeignKeyViolation(t *testing.T) {
	ds, err := ParseDataset([]byte(`
schema:
  - CREATE TABLE country (code TEXT PRIMARY KEY)
  - CREATE TABLE address (id INTEGER PRIMARY KEY, country_code TEXT NOT NULL REFERENCES country(code))
tables:
  - name: address
    rows:
      - {id: 1, country_code: XX}
`))
	if err != nil {
		t.Fatalf("ParseDataset() failed: %v", err)
	}

	s := createTestStore(t)
	if err := s.LoadDataset(context.Background(), ds); err == nil {
		t.Error("expected foreign key error")
	}
}
