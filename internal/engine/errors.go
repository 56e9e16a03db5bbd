package engine

import (
	"errors"
	"fmt"
)

// StatementExecutionError wraps an executor failure with the SQL that
// caused it.
type StatementExecutionError struct {
	// SQL is the statement text.
	SQL string

	// Path is the deferred path for secondary fetches, empty for the
	// primary statement.
	Path string

	Err error
}

// Error implements the error interface.
func (e *StatementExecutionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("statement for %q failed: %v (sql=%s)", e.Path, e.Err, e.SQL)
	}
	return fmt.Sprintf("statement failed: %v (sql=%s)", e.Err, e.SQL)
}

func (e *StatementExecutionError) Unwrap() error { return e.Err }

// IsStatementError returns true if the error is a StatementExecutionError.
// Uses errors.As to handle wrapped errors.
func IsStatementError(err error) bool {
	var se *StatementExecutionError
	return errors.As(err, &se)
}

// NonUniqueResultError is returned by FindOne when more than one root
// matched.
type NonUniqueResultError struct {
	Type  string
	Count int
}

// Error implements the error interface.
func (e *NonUniqueResultError) Error() string {
	return fmt.Sprintf("expected at most one %s, found %d", e.Type, e.Count)
}

// IsNonUniqueResult returns true if the error is a NonUniqueResultError.
func IsNonUniqueResult(err error) bool {
	var ne *NonUniqueResultError
	return errors.As(err, &ne)
}
