// Package model defines shared data types used across the chain gateway.
//
// Conventions:
//   - Object IDs: strings of the form "space.type.instance" (e.g. "1.3.0")
//   - Large chain integers (supplies, balances): json.Number, since the node
//     serializes 64-bit values as strings
//   - Remote records are decoded at the connection boundary; fields the
//     gateway never inspects stay json.RawMessage
package model
