// Package fetch implements batched remote-object retrieval.
//
// The fetcher:
//   - Splits large ID lists into fixed-size request chunks
//   - Dispatches chunks concurrently behind a bounded semaphore
//   - Skips failed chunks instead of retrying or aborting siblings
//   - Reassembles results in chunk order regardless of completion order
//   - Demotes the chain's head node on connection-establishment failure
//
// Retrieval is a best-effort union: a call succeeds as long as anything at
// all was retrieved.
package fetch
