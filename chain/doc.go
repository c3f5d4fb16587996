// Package chain persists refresh chains: the per-device lineage of refresh
// tokens a subject holds, keyed by (subject, chain id).
//
// # Binary encoding
//
// Chain state is stored as a compact versioned binary blob. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # Concurrency
//
// A chain is only ever advanced with a compare-and-swap against the blob that
// was read, so two rotations racing on the same refresh token cannot both
// succeed. The per-subject and per-device indexes are maintained with bounded
// CAS loops; no in-process locks are held.
//
// # What this package must NOT do
//
//   - Import leadAuth or jwt (no upward imports).
//   - Make authorization decisions.
//   - Store raw nonces or raw fingerprints.
package chain
