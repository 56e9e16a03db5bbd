// Package bean holds materialized entity instances.
//
// A Bean is an interceptable object: instead of relying on generated
// subclasses to notice field access, every accessor checks an explicit
// state machine before returning data:
//
//	StateReference --first access--> hook runs --> StateLoaded
//	                                           \--> StateFailed (terminal)
//
// A reference bean knows only its type and id. The hook installed with
// OnFirstAccess is how lazy loading is triggered; the hook is synchronous
// and blocks the caller until the batch that covers the bean completes.
// Collections follow the same state machine.
//
// Beans and collections are not safe for concurrent use. A top-level query
// execution, including every lazy load it triggers, runs on one goroutine.
package bean
