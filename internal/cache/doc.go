// Package cache implements the precomputed snapshot cache for reference
// datasets.
//
// The store:
//   - Ingests raw per-chain fixture files at startup
//   - Applies dataset-specific filters (disabled offers, feedless
//     bitassets, placeholder assets)
//   - Produces full and minimized projections per dataset
//   - Compresses each projection to gzip exactly once and serves the blob
//     verbatim; decompression is the caller's responsibility
//   - Answers point lookups by scanning the uncompressed collections
//
// The store is immutable after Build; refreshing requires replacing the
// fixture files and restarting the process.
package cache
