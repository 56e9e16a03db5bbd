// Package ir provides the canonical value model used to identify query
// shapes.
//
// Plan keys must be a pure function of a query's structure: the same shape
// must hash to the same key on every call, on every goroutine and across
// process restarts. Go map iteration order and encoding/json's HTML
// escaping both get in the way of that, so shapes are converted to the
// sealed Value types here and serialized with MarshalCanonical.
//
// Key design constraints:
//   - NO float types - numbers are int64
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Strings are NFC normalized before hashing
//
// ir imports nothing internal.
package ir
