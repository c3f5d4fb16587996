package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/store"
)

// SessionDeps captures logout, revocation and chain listing dependencies.
type SessionDeps struct {
	Verify      VerifyDeps
	Chains      ChainStore
	Revocations RevocationStore
	Warn        func(string, ...any)
}

// LogoutResult carries the verified claims of the token that was logged out
// or revoked, or the verification failure that prevented it.
type LogoutResult struct {
	Verify VerifyResult
	Err    error
}

// Claims returns the claims of the affected token, if decoded.
func (r LogoutResult) Claims() *jwt.AccessClaims {
	return r.Verify.Claims
}

// RunLogout verifies the access token, deletes the chain it belongs to and
// revokes the token itself.
func RunLogout(ctx context.Context, accessToken, fingerprint string, deps SessionDeps) LogoutResult {
	v := RunVerify(ctx, accessToken, fingerprint, deps.Verify)
	if v.Failure != VerifyFailureNone {
		return LogoutResult{Verify: v}
	}
	claims := v.Claims

	if claims.ChainID != "" {
		current, _, err := deps.Chains.Load(ctx, claims.Subject, claims.ChainID)
		if err != nil && !errors.Is(err, chain.ErrCorrupt) && !errors.Is(err, chain.ErrExpired) {
			return LogoutResult{Verify: v, Err: err}
		}
		if current != nil {
			if err := revokeChain(ctx, current, store.ReasonLogout, deps.Chains, deps.Revocations, deps.Warn); err != nil {
				return LogoutResult{Verify: v, Err: err}
			}
		}
	}

	return LogoutResult{Verify: v, Err: revokeClaims(ctx, claims, store.ReasonLogout, deps.Revocations)}
}

// RunLogoutAll deletes every chain of subjectID and revokes their last
// access tokens. It returns the number of chains removed.
func RunLogoutAll(ctx context.Context, subjectID string, deps SessionDeps) (int, error) {
	chains, err := deps.Chains.List(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, c := range chains {
		if err := revokeChain(ctx, c, store.ReasonLogout, deps.Chains, deps.Revocations, deps.Warn); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RunRevokeAccessToken revokes a single access token until it expires. The
// signature is verified; the device binding is not, so administrators can
// revoke tokens they only hold a copy of.
func RunRevokeAccessToken(ctx context.Context, accessToken, reason string, deps SessionDeps) LogoutResult {
	claims, err := deps.Verify.Codec.DecodeAccess(accessToken)
	if err != nil {
		return LogoutResult{Verify: VerifyResult{Failure: VerifyFailureDecode, Err: err}}
	}
	if reason == "" {
		reason = store.ReasonManual
	}
	v := VerifyResult{Claims: claims}
	return LogoutResult{Verify: v, Err: revokeClaims(ctx, claims, reason, deps.Revocations)}
}

// RunListChains returns the live chains of subjectID, oldest first.
func RunListChains(ctx context.Context, subjectID string, deps SessionDeps) ([]*chain.State, error) {
	return deps.Chains.List(ctx, subjectID)
}

func revokeClaims(ctx context.Context, claims *jwt.AccessClaims, reason string, revocations RevocationStore) error {
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return revocations.Revoke(ctx, claims.ID, reason, expires)
}
