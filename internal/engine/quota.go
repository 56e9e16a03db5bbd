package engine

import (
	"errors"
	"fmt"
)

// StatementQuota bounds the number of statements one execution may issue,
// lazy loads included. It stops runaway graphs where every touched
// placeholder opens another path.
type StatementQuota struct {
	limit int // 0 = unlimited
	used  int
}

// NewStatementQuota creates a quota. A limit of zero disables it.
func NewStatementQuota(limit int) *StatementQuota {
	return &StatementQuota{limit: limit}
}

// Check counts one statement and fails once the limit is exceeded.
func (q *StatementQuota) Check(executionID string) error {
	q.used++
	if q.limit > 0 && q.used > q.limit {
		return &StatementLimitError{
			ExecutionID: executionID,
			Statements:  q.used,
			Limit:       q.limit,
		}
	}
	return nil
}

// Used returns the statements counted so far.
func (q *StatementQuota) Used() int {
	return q.used
}

// Limit returns the configured limit.
func (q *StatementQuota) Limit() int {
	return q.limit
}

// StatementLimitError is returned when an execution exceeds its statement
// quota.
type StatementLimitError struct {
	ExecutionID string
	Statements  int
	Limit       int
}

// Error implements the error interface.
func (e *StatementLimitError) Error() string {
	return fmt.Sprintf("execution %s exceeded statement limit: %d statements > %d limit",
		e.ExecutionID, e.Statements, e.Limit)
}

// IsStatementLimit returns true if the error is a StatementLimitError.
func IsStatementLimit(err error) bool {
	var le *StatementLimitError
	return errors.As(err, &le)
}
