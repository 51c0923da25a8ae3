// Package explorer provides access to the public block explorer REST API,
// which carries data the chain nodes do not index: elasticsearch-backed
// account history and market volume rankings.
package explorer
