// Package materialize turns rows into bean graphs.
//
// Each row is read by walking the plan's join tree in the order the
// renderer emitted columns, consuming exactly the columns each node
// declared. Beans are reused through the persistence context, collection
// rows are grouped by their parent and deferred paths get placeholders that
// are handed to a Registrar.
package materialize
