// Package queryir describes what a caller wants loaded.
//
// A Query names the root entity type, the properties to select on the root,
// the association paths to join together with their fetch mode, and opaque
// predicate and ordering text. It is the only input to planning: two queries
// with the same shape produce the same plan, whatever their bind values.
//
// Paths are dot-delimited property chains relative to the root type:
//
//	"contacts"
//	"billingAddress.country"
//
// Predicate and order-by text refer to properties as {path.property}, or
// {property} for the root:
//
//	Where:   "{status} = ? and {billingAddress.country.code} = ?"
//	OrderBy: "{name} desc"
//
// Fetch modes:
//
//	FetchEager  joined into the same SQL statement
//	FetchQuery  loaded by a batched secondary statement right after the
//	            primary statement completes
//	FetchLazy   loaded by a batched statement on first access to any
//	            placeholder registered under the path
package queryir
