// Package middleware adapts leadAuth.Engine to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token against the request's device
//     fingerprint and injects the principal into the request context.
//   - [RequireRole], [RequireCapability] and [RequireOrganization] authorize
//     the injected principal and answer 403 when it falls short.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every token
// decision is delegated to Engine.Verify.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Turn a store outage into a 401.
package middleware
