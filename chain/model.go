package chain

import "time"

// State is one refresh chain.
//
// NonceHash is the sha256 of the only nonce that may advance the chain.
// DeviceHash is the keyed fingerprint hash the chain was created for. The
// principal snapshot (organization, role, permissions) is what rotations
// re-mint access tokens from.
type State struct {
	SchemaVersion uint8

	ChainID    string
	SubjectID  string
	DeviceHash [32]byte
	NonceHash  [32]byte
	Generation uint32

	OrganizationID string
	Role           string
	Permissions    []string

	LastTokenID        string
	LastTokenExpiresAt int64

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the chain has outlived its expiry at now.
func (s *State) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	if s.Permissions != nil {
		c.Permissions = append([]string(nil), s.Permissions...)
	}
	return &c
}
