// Package leadAuth is the token lifecycle and authorization core of a
// multi-tenant lead-management service.
//
// It issues short-lived access tokens and long-lived refresh tokens bound to
// a device fingerprint, rotates refresh tokens once each, detects replay of a
// spent refresh token and revokes the affected chain, and answers role and
// organization questions over a fixed role hierarchy.
//
// Password checks, user storage and the HTTP wire format belong to the
// caller: Issue expects a principal that has already been authenticated.
//
// # Architecture boundaries
//
// leadAuth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([Principal], [TokenPair], [ChainInfo]). Flow orchestration,
// fingerprint hashing and audit dispatch live under internal/. Chain state
// lives only in the store and is changed through compare-and-swap; nothing
// is cached in process.
//
// # Concurrency
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Two concurrent Rotate calls with the same refresh token
// produce exactly one new pair.
package leadAuth
