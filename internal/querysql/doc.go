// Package querysql renders a join tree into parameterized SQL.
//
// Rendering walks the tree in the shared pre-order. Table aliases are
// assigned on first use during the walk (t0 for the root, then t1, t2, ...)
// and memoized for the pass, so identical trees always produce identical
// SQL text. All values are parameterized; predicate and order-by text is
// passed through with {path.property} references rewritten to columns.
package querysql
