package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const nonceSize = 32

// Nonce is the single-use secret carried inside a refresh token. Only its
// hash is ever persisted.
type Nonce [nonceSize]byte

func NewNonce() (Nonce, error) {
	var n Nonce
	_, err := rand.Read(n[:])
	return n, err
}

func (n Nonce) String() string {
	return base64.RawURLEncoding.EncodeToString(n[:])
}

func ParseNonce(s string) (Nonce, error) {
	var n Nonce

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return n, err
	}
	if len(raw) != nonceSize {
		return n, errors.New("invalid nonce size")
	}

	copy(n[:], raw)
	return n, nil
}

func (n Nonce) Hash() [32]byte {
	return sha256.Sum256(n[:])
}

// NonceID is the hex form of a nonce hash, used to key consumed-nonce records.
func NonceID(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

// NewTokenID returns a random UUIDv4 for the jti claim.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewChainID returns a ULID stamped with now, so chain ids sort by creation.
func NewChainID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ChainIDTime extracts the creation timestamp embedded in a chain id.
func ChainIDTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
