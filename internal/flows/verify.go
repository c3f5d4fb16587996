package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/leadAuth/jwt"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureDecode
	VerifyFailureBinding
	VerifyFailureRevoked
	VerifyFailureStore
)

var errBindingMismatch = errors.New("fingerprint binding mismatch")

// VerifyResult returns either the verified claims or a classified failure.
// Claims are set on binding and revocation failures so callers can audit
// which subject was affected.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Reason  string
}

// VerifyDeps captures verification dependencies.
type VerifyDeps struct {
	Codec        Codec
	Revocations  RevocationStore
	Fingerprints Fingerprinter
}

// RunVerify decodes an access token, checks its device binding in constant
// time and consults the revocation set. It never writes.
func RunVerify(ctx context.Context, accessToken, fingerprint string, deps VerifyDeps) VerifyResult {
	claims, err := deps.Codec.DecodeAccess(accessToken)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}

	if fingerprint == "" || !deps.Fingerprints.Matches(fingerprint, claims.FingerprintHash) {
		return VerifyResult{Failure: VerifyFailureBinding, Err: errBindingMismatch, Claims: claims}
	}

	rec, revoked, err := deps.Revocations.Lookup(ctx, claims.ID)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureStore, Err: err, Claims: claims}
	}
	if revoked {
		return VerifyResult{Failure: VerifyFailureRevoked, Err: errors.New("token revoked"), Claims: claims, Reason: rec.Reason}
	}

	return VerifyResult{Claims: claims}
}
