// Package deeplink builds wallet deep-link payloads.
//
// A deep link wraps a fully built, fee-priced and expiry-bounded
// transaction in the wallet's injectedCall envelope and URI-encodes it, so
// a browser can hand the transaction to a signing wallet for broadcast.
package deeplink
