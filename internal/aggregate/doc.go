// Package aggregate executes composite chain queries.
//
// A composite query dials one session, runs its named sub-queries
// concurrently, waits for all of them to settle and assembles a single
// result. Every sub-query is classified up front:
//   - Mandatory: a failure or empty result fails the whole composite call
//   - Optional: a failure is replaced by a documented empty default
//
// The same component carries the simple one-shot live queries that share
// its session handling.
package aggregate
