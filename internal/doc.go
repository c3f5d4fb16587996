// Package internal contains helpers private to leadAuth: nonce, token id and
// chain id generation, and the keyed device fingerprint hash.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//
// Nothing here appears in the public leadAuth API.
package internal
