// Package engine runs queries end to end.
//
// The Engine is the server context: it owns the metadata provider, the
// planner and its plan cache, the statement executor and the configuration.
// Each FindList or FindOne call is one top-level execution with its own
// persistence context (identity map) and load context (deferred batches).
//
// EXECUTION FLOW:
//
//  1. Plan the query (cached by shape).
//  2. Execute the primary statement and materialize its rows.
//  3. Flush QUERY joins: one linked statement per path and batch, repeated
//     for QUERY joins those statements produce.
//  4. Return the roots. LAZY placeholders stay armed and fetch their whole
//     batch on first access, through the same execution.
//
// An execution is single-threaded. Every cursor is drained and closed
// before the next statement is issued.
package engine
