package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/beanplan/internal/rowsource"
	"github.com/roach88/beanplan/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createSeededStore creates a store with the fixture schema and rows.
func createSeededStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.ApplySchema(ctx, testutil.Schema); err != nil {
		t.Fatalf("ApplySchema() failed: %v", err)
	}
	if err := s.Seed(ctx, testutil.Seed); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

// drain reads every row and closes the cursor.
func drain(t *testing.T, c rowsource.RowCursor) [][]any {
	t.Helper()
	defer c.Close()
	var rows [][]any
	for c.Next() {
		vals, err := c.Values()
		if err != nil {
			t.Fatalf("Values() failed: %v", err)
		}
		rows = append(rows, vals)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	return rows
}
