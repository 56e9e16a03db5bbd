// Package rowsource defines the statement execution contract between the
// engine and whatever runs SQL.
//
// A RowCursor yields rows whose values line up one-to-one with the column
// list rendered for the plan. Cursors are forward only and must be closed;
// the engine drains and closes every cursor before returning control, so no
// connection is held across a lazy load boundary.
package rowsource

import (
	"context"
	"fmt"
)

// RowCursor is a forward-only row iterator.
type RowCursor interface {
	// Next advances to the next row. It returns false when the rows are
	// exhausted or an error occurred (see Err).
	Next() bool

	// Values returns the current row. The returned slice is owned by the
	// caller.
	Values() ([]any, error)

	// Err returns the error, if any, encountered during iteration.
	Err() error

	// Close releases the underlying resources. Safe to call more than once.
	Close() error
}

// Executor runs a SQL statement with bound arguments.
type Executor interface {
	Execute(ctx context.Context, sql string, args ...any) (RowCursor, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sql string, args ...any) (RowCursor, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, sql string, args ...any) (RowCursor, error) {
	return f(ctx, sql, args...)
}

// SliceCursor is an in-memory RowCursor over pre-built rows.
// Used for synthetic row sources and tests.
type SliceCursor struct {
	rows   [][]any
	pos    int
	closed bool
}

// NewSliceCursor creates a cursor over rows.
func NewSliceCursor(rows [][]any) *SliceCursor {
	return &SliceCursor{rows: rows, pos: -1}
}

// Next implements RowCursor.
func (c *SliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Values implements RowCursor.
func (c *SliceCursor) Values() ([]any, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("cursor not positioned on a row")
	}
	row := make([]any, len(c.rows[c.pos]))
	copy(row, c.rows[c.pos])
	return row, nil
}

// Err implements RowCursor.
func (c *SliceCursor) Err() error {
	return nil
}

// Close implements RowCursor.
func (c *SliceCursor) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *SliceCursor) Closed() bool {
	return c.closed
}
