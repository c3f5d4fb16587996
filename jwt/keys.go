package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSigningUnavailable is returned when the key source cannot supply a
// signing key. Callers treat it as a process-level configuration failure.
var ErrSigningUnavailable = errors.New("signing key unavailable")

// Key is one signing or verification key identified by its kid header value.
//
// For HS256 only Private is used (it is the shared secret). For Ed25519
// Private signs and Public verifies; both accept raw key bytes or PEM.
type Key struct {
	ID      string
	Private []byte
	Public  []byte
}

// KeySource supplies the active signing key and the set of keys tokens may
// still be verified against. VerificationKeys must include the active key
// followed by recently retired keys, so tokens minted before a rollover keep
// verifying until they expire.
type KeySource interface {
	SigningKey() (Key, error)
	VerificationKeys() ([]Key, error)
}

// StaticKeySource is a fixed in-memory KeySource.
type StaticKeySource struct {
	Current Key
	Retired []Key
}

// SigningKey returns the current key, or ErrSigningUnavailable when it has no
// private material.
func (s StaticKeySource) SigningKey() (Key, error) {
	if len(s.Current.Private) == 0 || strings.TrimSpace(s.Current.ID) == "" {
		return Key{}, ErrSigningUnavailable
	}
	return s.Current, nil
}

// VerificationKeys returns the current key followed by the retired keys.
func (s StaticKeySource) VerificationKeys() ([]Key, error) {
	keys := make([]Key, 0, 1+len(s.Retired))
	if strings.TrimSpace(s.Current.ID) != "" {
		keys = append(keys, s.Current)
	}
	keys = append(keys, s.Retired...)
	if len(keys) == 0 {
		return nil, errors.New("no verification keys configured")
	}
	return keys, nil
}

func checkKeys(method SigningMethod, keys []Key) error {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		kid := strings.TrimSpace(k.ID)
		if kid == "" {
			return errors.New("verification key with empty kid")
		}
		if _, dup := seen[kid]; dup {
			return fmt.Errorf("duplicate kid %q", kid)
		}
		seen[kid] = struct{}{}

		switch method {
		case MethodHS256:
			if len(k.Private) == 0 {
				return fmt.Errorf("hs256 key %q has no secret", kid)
			}
		case MethodEd25519:
			if _, err := verifyKeyFor(method, k); err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	}
	return nil
}

func signKeyFor(method SigningMethod, k Key) (interface{}, error) {
	switch method {
	case MethodHS256:
		return k.Private, nil
	default:
		return parseEdPrivateKey(k.Private)
	}
}

func verifyKeyFor(method SigningMethod, k Key) (interface{}, error) {
	switch method {
	case MethodHS256:
		return k.Private, nil
	default:
		if len(k.Public) == 0 && len(k.Private) > 0 {
			priv, err := parseEdPrivateKey(k.Private)
			if err != nil {
				return nil, err
			}
			return priv.Public(), nil
		}
		return parseEdPublicKey(k.Public)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
