// Package loadctx batches the deferred parts of an object graph.
//
// One LoadContext exists per top-level execution. The materializer
// registers every placeholder it creates for a QUERY or LAZY path; the
// LoadContext groups them by path and fetches each group with as few
// secondary statements as the batch size allows.
//
// Per path the lifecycle is:
//
//	Collecting -> Fetching -> Satisfied
//	                       -> Failed (terminal)
//
// QUERY paths are flushed by the engine right after the statement that
// produced them. LAZY paths are flushed on first access of any member,
// which loads every member registered so far.
package loadctx
