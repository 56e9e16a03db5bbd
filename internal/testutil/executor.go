package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/beanplan/internal/rowsource"
)

// Statement is one recorded execution.
type Statement struct {
	SQL  string
	Args []any
}

// RecordingExecutor wraps an executor and records every statement.
//
// Fail, when set, is consulted before each statement; a non-nil error is
// returned instead of running it.
//
// Thread-safety: safe for concurrent use.
type RecordingExecutor struct {
	Inner rowsource.Executor
	Fail  func(sql string, args []any) error

	mu         sync.Mutex
	statements []Statement
}

// NewRecordingExecutor wraps inner.
func NewRecordingExecutor(inner rowsource.Executor) *RecordingExecutor {
	return &RecordingExecutor{Inner: inner}
}

// Execute implements rowsource.Executor.
func (r *RecordingExecutor) Execute(ctx context.Context, sql string, args ...any) (rowsource.RowCursor, error) {
	r.mu.Lock()
	r.statements = append(r.statements, Statement{SQL: sql, Args: append([]any(nil), args...)})
	fail := r.Fail
	r.mu.Unlock()

	if fail != nil {
		if err := fail(sql, args); err != nil {
			return nil, err
		}
	}
	return r.Inner.Execute(ctx, sql, args...)
}

// Statements returns a copy of the recorded statements.
func (r *RecordingExecutor) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Statement(nil), r.statements...)
}

// Count returns how many statements contain substr.
func (r *RecordingExecutor) Count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.statements {
		if strings.Contains(s.SQL, substr) {
			n++
		}
	}
	return n
}

// Reset forgets recorded statements.
func (r *RecordingExecutor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = nil
}

// StaticExecutor returns the same rows for every statement.
func StaticExecutor(rows [][]any) rowsource.Executor {
	return rowsource.ExecutorFunc(func(ctx context.Context, sql string, args ...any) (rowsource.RowCursor, error) {
		return rowsource.NewSliceCursor(rows), nil
	})
}
