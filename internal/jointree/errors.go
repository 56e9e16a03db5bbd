package jointree

import (
	"errors"
	"fmt"
)

// UnknownPropertyError is returned when a path segment or property does not
// exist on the owning type.
type UnknownPropertyError struct {
	// Path is the path or property reference as written by the caller.
	Path string

	// Type is the entity type the failing segment was looked up on.
	Type string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("unknown property %q on type %s", e.Path, e.Type)
}

// JoinCycleError is returned when a path traverses the same association of
// the same owner type twice, for example "contacts.customer.contacts".
type JoinCycleError struct {
	Path string
	Edge string // "Type.association" that repeats
}

func (e *JoinCycleError) Error() string {
	return fmt.Sprintf("join path %q is cyclic: %s appears twice", e.Path, e.Edge)
}

// IsUnknownProperty reports whether err is an UnknownPropertyError.
// Uses errors.As to handle wrapped errors.
func IsUnknownProperty(err error) bool {
	var upe *UnknownPropertyError
	return errors.As(err, &upe)
}

// IsJoinCycle reports whether err is a JoinCycleError.
// Uses errors.As to handle wrapped errors.
func IsJoinCycle(err error) bool {
	var jce *JoinCycleError
	return errors.As(err, &jce)
}
