// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunIssue, RunVerify, RunRotate, ...) accepts a typed
// dependency struct and returns a result carrying either the payload or a
// classified failure kind. The root package maps failure kinds onto its
// public error sentinels.
//
// Flow functions coordinate calls to the token codec, chain repository,
// revocation store and fingerprinter. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import leadAuth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
