package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/store"
)

// Codec signs and verifies access and refresh tokens.
type Codec interface {
	EncodeAccess(claims jwt.AccessClaims, ttl time.Duration) (string, error)
	EncodeRefresh(claims jwt.RefreshClaims, ttl time.Duration) (string, error)
	DecodeAccess(token string) (*jwt.AccessClaims, error)
	DecodeRefresh(token string) (*jwt.RefreshClaims, error)
}

// ChainStore persists refresh chains.
type ChainStore interface {
	Create(ctx context.Context, s *chain.State) (*chain.State, error)
	Load(ctx context.Context, subjectID, chainID string) (*chain.State, []byte, error)
	Swap(ctx context.Context, expected []byte, next *chain.State) (bool, error)
	Delete(ctx context.Context, s *chain.State) error
	List(ctx context.Context, subjectID string) ([]*chain.State, error)
}

// RevocationStore records revoked access tokens and consumed nonces.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID, reason string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenID string) (store.Record, bool, error)
	MarkConsumed(ctx context.Context, nonceID, successor string, expiresAt time.Time) error
	Consumed(ctx context.Context, nonceID string) (store.Record, bool, error)
}

// Fingerprinter derives device binding hashes.
type Fingerprinter interface {
	Hash(fingerprint string) string
	Sum(fingerprint string) [32]byte
	Matches(fingerprint, fph string) bool
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Verify   VerifyDeps
	Rotate   RotateDeps
	Sessions SessionDeps
}

// Lifetimes are the token and chain durations shared by issue and rotate.
type Lifetimes struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	AbsoluteLifetime time.Duration
}

// chainExpiry is the next expiry of a chain created at createdAt: one refresh
// lifetime from now, capped by the absolute lifetime.
func (l Lifetimes) chainExpiry(now time.Time, createdAt int64) time.Time {
	next := now.Add(l.RefreshTTL)
	if l.AbsoluteLifetime > 0 {
		limit := time.Unix(createdAt, 0).Add(l.AbsoluteLifetime)
		if limit.Before(next) {
			next = limit
		}
	}
	return next.Truncate(time.Second)
}

func warn(fn func(string, ...any), msg string, args ...any) {
	if fn != nil {
		fn(msg, args...)
	}
}
