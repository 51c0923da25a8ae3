// Package rpc implements the WebSocket JSON-RPC session to a chain node.
//
// A session:
//   - Dials the node with a fixed handshake timeout
//   - Performs the login handshake and registers the database API
//   - Correlates calls and responses through a pending map keyed by call id
//   - Serializes writes behind a mutex
//
// Raw transport errors never cross the package boundary; they are wrapped
// into ErrConnection or ErrTimeout, and server-reported failures surface as
// *RemoteError.
package rpc
