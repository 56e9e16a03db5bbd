// Package plan builds and caches query plans.
//
// A plan is keyed by the shape of a query: its type, selections, joins,
// predicate and order-by text and whether paging is requested. Bind values
// and paging values are not part of the key, so executions that differ only
// in their parameters share one plan and one SQL text.
//
// Plans are immutable once published except for their statistics, which
// are updated with atomics by every execution.
package plan
