package leadAuth

import (
	"time"

	"github.com/MrEthical07/leadAuth/permission"
)

// Role is a position in the fixed role hierarchy.
type Role = permission.Role

// Roles, highest rank first.
const (
	RoleAdmin             = permission.Admin
	RoleOrganizationAdmin = permission.OrganizationAdmin
	RoleAgent             = permission.Agent
	RoleFormManager       = permission.FormManager
	RoleReadOnly          = permission.ReadOnly
)

// Principal is an authenticated identity.
//
// Issue reads SubjectID, OrganizationID, Role and Permissions. Verify fills
// every field from the access token's claims.
type Principal struct {
	SubjectID      string
	OrganizationID string
	Role           Role
	Permissions    []string

	TokenID   string
	ChainID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Can reports whether p carries capability.
func (p *Principal) Can(capability string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Permissions {
		if c == capability {
			return true
		}
	}
	return false
}

// HasRole reports whether p's role ranks at or above required.
func (p *Principal) HasRole(required Role) bool {
	return p != nil && permission.HasPermission(p.Role, required)
}

// CanAccessOrganization reports whether p may act on targetOrg.
func (p *Principal) CanAccessOrganization(targetOrg string) bool {
	return p != nil && permission.CanAccessOrganization(p.Role, p.OrganizationID, targetOrg)
}

// TokenPair is the result of Issue and Rotate. The refresh token is opaque
// to clients and must be presented with the same device fingerprint.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessTTLSeconds int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	TokenID          string
	ChainID          string
	Principal        Principal
}

// ChainInfo is the safe introspection view of a refresh chain.
// It excludes the nonce hash and device hash.
type ChainInfo struct {
	ChainID        string
	OrganizationID string
	Role           Role
	Generation     uint32
	LastTokenID    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}
