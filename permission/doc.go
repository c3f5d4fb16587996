// Package permission holds the fixed role hierarchy, organization scoping
// rules and the capability registry used by leadAuth authorization checks.
//
// # Roles
//
// Roles form a strict ladder: Admin > OrganizationAdmin > Agent >
// FormManager > ReadOnly. A role satisfies a requirement when its rank is at
// least the required rank. Unknown roles never satisfy anything.
//
// # Capabilities
//
// Capabilities are opaque strings ("leads.read"). They are registered once
// at startup into a [Registry], which is then frozen. A [RoleManager] maps
// each role to the capabilities it grants by default.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import leadAuth, jwt, or chain.
package permission
