// Package jointree expands a query against entity metadata into a tree of
// join nodes.
//
// The tree is the single source of truth shared by the SQL renderer and the
// row materializer: both walk it in the same pre-order (children sorted by
// name), so the column list emitted by one lines up with the values consumed
// by the other.
//
// Deferred paths (FetchQuery and FetchLazy joins) are not part of the
// rendered tree. They are returned as Deferred registrations attached to the
// node that will hold their placeholders. Joins requested beneath a deferred
// path are absorbed into that registration and fetched with its batch query.
package jointree
