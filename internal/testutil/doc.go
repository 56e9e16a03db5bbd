// Package testutil provides shared fixtures for tests: an entity model
// (customers, addresses, contacts, orders and friends), the matching SQLite
// schema and seed rows, a recording executor and deterministic clocks and id
// generators.
package testutil
