package materialize

import (
	"errors"
	"fmt"
)

// InconsistentRowOrderingError is returned when rows for one collection
// parent are not contiguous, meaning the statement's ordering was not
// honored. Grouping such rows would silently corrupt the graph.
type InconsistentRowOrderingError struct {
	Path   string // collection path
	Parent string // parent identity that reappeared
}

func (e *InconsistentRowOrderingError) Error() string {
	return fmt.Sprintf("rows for collection %q are not contiguous: parent %s reappeared", e.Path, e.Parent)
}

// IsInconsistentRowOrdering reports whether err is an
// InconsistentRowOrderingError.
func IsInconsistentRowOrdering(err error) bool {
	var e *InconsistentRowOrderingError
	return errors.As(err, &e)
}

// ColumnCountError is returned when a row does not have the number of
// values the plan selected.
type ColumnCountError struct {
	Want int
	Got  int
}

func (e *ColumnCountError) Error() string {
	return fmt.Sprintf("row has %d values, plan selects %d columns", e.Got, e.Want)
}
