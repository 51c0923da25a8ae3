// Package nodepool implements the per-chain RPC endpoint failover manager.
//
// The pool:
//   - Holds an ordered list of candidate endpoints per chain
//   - Serves the head of the list as the current endpoint
//   - Demotes a misbehaving head to the tail on caller-reported failure
//   - Never changes list membership at runtime, only order
//
// Health is inferred purely from caller-reported failures; a demoted node is
// only retried once it cycles back to the head.
package nodepool
