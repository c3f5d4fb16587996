package leadAuth

import (
	"errors"

	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/permission"
)

var (
	// ErrMalformed is returned for tokens that cannot be parsed, carry the
	// wrong use marker, or miss required claims.
	ErrMalformed = jwt.ErrMalformed
	// ErrSignatureInvalid is returned when a token signature does not verify.
	// It wraps ErrMalformed.
	ErrSignatureInvalid = jwt.ErrSignatureInvalid
	// ErrExpired is returned for correctly signed tokens past their expiry.
	ErrExpired = jwt.ErrExpired
	// ErrBindingMismatch is returned when the presented fingerprint does not
	// match the device a token was issued to.
	ErrBindingMismatch = errors.New("device binding mismatch")
	// ErrRevoked is returned for access tokens revoked before their expiry.
	ErrRevoked = errors.New("token revoked")
	// ErrChainNotFound is returned when a refresh token names a chain that
	// no longer exists.
	ErrChainNotFound = errors.New("refresh chain not found")
	// ErrReuseDetected is returned when a spent refresh token is presented.
	// The chain it belonged to has been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrUnknownRole is returned for role names outside the role table.
	ErrUnknownRole = permission.ErrUnknownRole
	// ErrUnknownCapability is returned when a principal carries a capability
	// that was not registered at build time.
	ErrUnknownCapability = permission.ErrUnknownCapability
	// ErrPermissionDenied is returned by CheckPermission when the actor's
	// role ranks below the required one.
	ErrPermissionDenied = permission.ErrPermissionDenied
	// ErrServiceUnavailable is returned when the backing store cannot be
	// reached. It is never an authorization decision.
	ErrServiceUnavailable = errors.New("auth service unavailable")
	// ErrConfiguration is returned when the engine is misconfigured, for
	// example when no signing key is available.
	ErrConfiguration = errors.New("auth configuration error")
	// ErrFingerprintRequired is returned when a device fingerprint is missing.
	ErrFingerprintRequired = errors.New("device fingerprint required")
	// ErrInvalidPrincipal is returned for principals with missing or invalid
	// identifiers.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrEngineNotReady is returned when an Engine was not built through
	// Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
