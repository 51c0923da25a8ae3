// Package server exposes the gateway's REST surface.
//
// Routes split into three groups:
//   - /cache: precompressed snapshot blobs and point lookups, no network
//   - /chain: live node-backed queries, simple and composite
//   - /explorer: passthroughs to the public block explorer
//
// Successful responses use the {"message":"Success!","result":...}
// envelope. Failures carry a machine-readable error kind next to the
// human-readable message and map onto HTTP status codes.
package server
