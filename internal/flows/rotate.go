package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
	"github.com/MrEthical07/leadAuth/internal"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/store"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureBinding
	RotateFailureChainNotFound
	RotateFailureReuse
	RotateFailureGenerate
	RotateFailureSign
	RotateFailureStore
)

var (
	errChainNotFound = errors.New("refresh chain not found")
	errReuse         = errors.New("refresh token reuse detected")
)

// RotateResult carries either the rotated pair or failure metadata.
type RotateResult struct {
	Failure RotateFailureKind
	Err     error

	SubjectID        string
	OrganizationID   string
	Role             string
	Permissions      []string
	ChainID          string
	TokenID          string
	Generation       uint32
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// RevokedChains counts chains torn down by reuse handling.
	RevokedChains int
	// SuccessorRevoked is set when a consumed nonce was replayed after its
	// chain was gone and the access token it had minted was revoked.
	SuccessorRevoked bool
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Codec                Codec
	Chains               ChainStore
	Revocations          RevocationStore
	Fingerprints         Fingerprinter
	Lifetimes            Lifetimes
	RevokeSubjectOnReuse bool
	Now                  func() time.Time
	Warn                 func(string, ...any)
}

// RunRotate exchanges a refresh token for a new pair.
//
// The stored chain is compared against the presented nonce and exactly one
// outcome applies: match (advance the chain with one compare-and-swap),
// stale (the chain is compromised and torn down) or absent (nothing to
// rotate). A lost compare-and-swap means another rotation spent the nonce
// first and is handled as stale.
func RunRotate(ctx context.Context, refreshToken, fingerprint string, deps RotateDeps) RotateResult {
	claims, err := deps.Codec.DecodeRefresh(refreshToken)
	if err != nil {
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}
	// chain ids are minted as ULIDs; anything else never reaches the store
	if _, err := internal.ChainIDTime(claims.ChainID); err != nil {
		return RotateResult{Failure: RotateFailureDecode, Err: jwt.ErrMalformed, SubjectID: claims.Subject}
	}
	res := RotateResult{SubjectID: claims.Subject, ChainID: claims.ChainID}

	if fingerprint == "" || !deps.Fingerprints.Matches(fingerprint, claims.FingerprintHash) {
		res.Failure, res.Err = RotateFailureBinding, errBindingMismatch
		return res
	}

	nonce, err := internal.ParseNonce(claims.Nonce)
	if err != nil {
		res.Failure, res.Err = RotateFailureDecode, jwt.ErrMalformed
		return res
	}
	presented := nonce.Hash()

	current, raw, err := deps.Chains.Load(ctx, claims.Subject, claims.ChainID)
	if errors.Is(err, chain.ErrExpired) {
		return rotateExhausted(ctx, res, current, deps)
	}
	if err != nil && !errors.Is(err, chain.ErrCorrupt) {
		res.Failure, res.Err = RotateFailureStore, err
		return res
	}
	if current == nil {
		return rotateAbsent(ctx, res, presented, deps)
	}

	if !internal.EqualHash(current.DeviceHash, deps.Fingerprints.Sum(fingerprint)) {
		res.Failure, res.Err = RotateFailureBinding, errBindingMismatch
		return res
	}
	if !internal.EqualHash(current.NonceHash, presented) {
		return rotateCompromised(ctx, res, current, deps)
	}

	now := deps.Now()
	nextExpires := deps.Lifetimes.chainExpiry(now, current.CreatedAt)
	refreshTTL := nextExpires.Sub(now)
	if refreshTTL <= 0 {
		return rotateExhausted(ctx, res, current, deps)
	}

	nextNonce, err := internal.NewNonce()
	if err != nil {
		res.Failure, res.Err = RotateFailureGenerate, err
		return res
	}
	tokenID, err := internal.NewTokenID()
	if err != nil {
		res.Failure, res.Err = RotateFailureGenerate, err
		return res
	}

	access, err := deps.Codec.EncodeAccess(jwt.AccessClaims{
		OrganizationID:  current.OrganizationID,
		Role:            current.Role,
		Permissions:     current.Permissions,
		FingerprintHash: claims.FingerprintHash,
		ChainID:         current.ChainID,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: current.SubjectID,
			ID:      tokenID,
		},
	}, deps.Lifetimes.AccessTTL)
	if err != nil {
		res.Failure, res.Err = RotateFailureSign, err
		return res
	}
	refresh, err := deps.Codec.EncodeRefresh(jwt.RefreshClaims{
		ChainID:          current.ChainID,
		Nonce:            nextNonce.String(),
		FingerprintHash:  claims.FingerprintHash,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: current.SubjectID},
	}, refreshTTL)
	if err != nil {
		res.Failure, res.Err = RotateFailureSign, err
		return res
	}

	accessExpires := now.Add(deps.Lifetimes.AccessTTL)
	next := current.Clone()
	next.NonceHash = nextNonce.Hash()
	next.Generation++
	next.LastTokenID = tokenID
	next.LastTokenExpiresAt = accessExpires.Unix()
	next.ExpiresAt = nextExpires.Unix()

	swapped, err := deps.Chains.Swap(ctx, raw, next)
	if err != nil {
		res.Failure, res.Err = RotateFailureStore, err
		return res
	}
	if !swapped {
		winner, _, err := deps.Chains.Load(ctx, claims.Subject, claims.ChainID)
		if err != nil && !errors.Is(err, chain.ErrCorrupt) && !errors.Is(err, chain.ErrExpired) {
			res.Failure, res.Err = RotateFailureStore, err
			return res
		}
		if winner == nil {
			res.Failure, res.Err = RotateFailureReuse, errReuse
			return res
		}
		return rotateCompromised(ctx, res, winner, deps)
	}

	var oldExpiry time.Time
	if claims.ExpiresAt != nil {
		oldExpiry = claims.ExpiresAt.Time
	}
	if err := deps.Revocations.MarkConsumed(ctx, internal.NonceID(presented), tokenID, oldExpiry); err != nil {
		warn(deps.Warn, "record consumed nonce failed", "subject_id", current.SubjectID, "chain_id", current.ChainID, "error", err)
	}

	res.OrganizationID = next.OrganizationID
	res.Role = next.Role
	res.Permissions = next.Permissions
	res.TokenID = tokenID
	res.Generation = next.Generation
	res.AccessToken = access
	res.RefreshToken = refresh
	res.AccessExpiresAt = accessExpires
	res.RefreshExpiresAt = nextExpires
	return res
}

// rotateAbsent handles a refresh token whose chain no longer exists. If the
// nonce was already spent by a rotation, the access token that rotation
// minted is revoked as well.
func rotateAbsent(ctx context.Context, res RotateResult, presented [32]byte, deps RotateDeps) RotateResult {
	res.Failure, res.Err = RotateFailureChainNotFound, errChainNotFound

	rec, found, err := deps.Revocations.Consumed(ctx, internal.NonceID(presented))
	if err != nil {
		warn(deps.Warn, "consumed nonce lookup failed", "subject_id", res.SubjectID, "chain_id", res.ChainID, "error", err)
		return res
	}
	if !found || rec.Successor == "" {
		return res
	}

	expires := deps.Now().Add(deps.Lifetimes.AccessTTL)
	if err := deps.Revocations.Revoke(ctx, rec.Successor, store.ReasonReuse, expires); err != nil {
		warn(deps.Warn, "revoke successor token failed", "subject_id", res.SubjectID, "chain_id", res.ChainID, "error", err)
		return res
	}
	res.SuccessorRevoked = true
	return res
}

// rotateExhausted ends a chain that reached its lifetime. The chain goes
// away the same way a logout removes it, last access token included.
func rotateExhausted(ctx context.Context, res RotateResult, exhausted *chain.State, deps RotateDeps) RotateResult {
	if err := revokeChain(ctx, exhausted, store.ReasonExpired, deps.Chains, deps.Revocations, deps.Warn); err != nil {
		warn(deps.Warn, "revoke exhausted chain failed", "subject_id", exhausted.SubjectID, "chain_id", exhausted.ChainID, "error", err)
	}
	res.Failure, res.Err = RotateFailureChainNotFound, errChainNotFound
	return res
}

// rotateCompromised tears down a chain whose nonce was replayed: the chain
// is deleted and its last access token revoked, and with
// RevokeSubjectOnReuse every other chain of the subject goes the same way.
func rotateCompromised(ctx context.Context, res RotateResult, compromised *chain.State, deps RotateDeps) RotateResult {
	if err := revokeChain(ctx, compromised, store.ReasonReuse, deps.Chains, deps.Revocations, deps.Warn); err != nil {
		res.Failure, res.Err = RotateFailureStore, err
		return res
	}
	res.RevokedChains = 1

	if deps.RevokeSubjectOnReuse {
		others, err := deps.Chains.List(ctx, compromised.SubjectID)
		if err != nil {
			warn(deps.Warn, "list subject chains after reuse failed", "subject_id", compromised.SubjectID, "error", err)
		}
		for _, other := range others {
			if err := revokeChain(ctx, other, store.ReasonReuse, deps.Chains, deps.Revocations, deps.Warn); err != nil {
				warn(deps.Warn, "revoke subject chain after reuse failed", "subject_id", other.SubjectID, "chain_id", other.ChainID, "error", err)
				continue
			}
			res.RevokedChains++
		}
	}

	res.Failure, res.Err = RotateFailureReuse, errReuse
	return res
}

// revokeChain deletes s and revokes its last access token. Only the delete
// is mandatory; a failed revocation is logged and the token expires on its
// own.
func revokeChain(ctx context.Context, s *chain.State, reason string, chains ChainStore, revocations RevocationStore, warnFn func(string, ...any)) error {
	if err := chains.Delete(ctx, s); err != nil {
		return err
	}
	if err := revocations.Revoke(ctx, s.LastTokenID, reason, time.Unix(s.LastTokenExpiresAt, 0)); err != nil {
		warn(warnFn, "revoke last chain token failed", "subject_id", s.SubjectID, "chain_id", s.ChainID, "error", err)
	}
	return nil
}
