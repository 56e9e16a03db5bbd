package loadctx

import (
	"errors"
	"fmt"
)

// BatchFetchError is returned, and stored on every member, when a
// secondary fetch for a path fails.
type BatchFetchError struct {
	Path string
	Err  error
}

func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("batch fetch of %q failed: %v", e.Path, e.Err)
}

func (e *BatchFetchError) Unwrap() error { return e.Err }

// IsBatchFetch reports whether err is a BatchFetchError.
func IsBatchFetch(err error) bool {
	var e *BatchFetchError
	return errors.As(err, &e)
}

// NotFoundError is set on a reference whose target row was not returned by
// an otherwise successful batch.
type NotFoundError struct {
	Path string
	Type string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s referenced by %q does not exist", e.Type, e.ID, e.Path)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// UnknownPathError is returned when a placeholder is registered for a path
// that was never declared.
type UnknownPathError struct {
	Path string
}

func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("no deferred path %q", e.Path)
}
