// Package store is the SQLite statement executor.
//
// A Store runs the SQL rendered by the planner and hands rows back as
// rowsource cursors. It also applies DDL and seeds datasets so the CLI and
// tests can run plans against a real database.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The pool is limited to one connection. Every cursor must be closed before
// the next statement runs; the engine drains and closes each cursor before
// it triggers a secondary fetch.
package store
