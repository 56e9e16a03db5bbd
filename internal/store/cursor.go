package store

import (
	"database/sql"
	"fmt"
	"time"
)

// cursor adapts sql.Rows to rowsource.RowCursor.
type cursor struct {
	rows    *sql.Rows
	columns int
	err     error
	closed  bool
}

func newCursor(rows *sql.Rows) (*cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return &cursor{rows: rows, columns: len(cols)}, nil
}

func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	return c.rows.Next()
}

// Values scans the current row. Text comes back as string and integers
// as int64; timestamps are formatted as RFC 3339.
func (c *cursor) Values() ([]any, error) {
	vals := make([]any, c.columns)
	ptrs := make([]any, c.columns)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		return nil, c.err
	}
	for i, v := range vals {
		vals[i] = driverValue(v)
	}
	return vals, nil
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

func driverValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
