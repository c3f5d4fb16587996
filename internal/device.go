package internal

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// MinFingerprintSaltSize is the shortest accepted fingerprint salt.
const MinFingerprintSaltSize = 16

// Fingerprinter derives the binding hash of a device fingerprint with keyed
// BLAKE2b-256. The raw fingerprint is never stored or logged.
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(salt []byte) (*Fingerprinter, error) {
	if len(salt) < MinFingerprintSaltSize {
		return nil, errors.New("fingerprint salt too short")
	}
	if len(salt) > blake2b.Size {
		return nil, errors.New("fingerprint salt too long")
	}
	key := make([]byte, len(salt))
	copy(key, salt)
	return &Fingerprinter{key: key}, nil
}

// Sum returns the raw 32-byte binding hash.
func (f *Fingerprinter) Sum(fingerprint string) [32]byte {
	var out [32]byte
	h, err := blake2b.New256(f.key)
	if err != nil {
		// key length is checked in NewFingerprinter
		panic(err)
	}
	h.Write([]byte(fingerprint))
	copy(out[:], h.Sum(nil))
	return out
}

// Hash returns the base64url binding hash carried in the fph claim.
func (f *Fingerprinter) Hash(fingerprint string) string {
	sum := f.Sum(fingerprint)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Matches reports, in constant time, whether fingerprint hashes to fph.
func (f *Fingerprinter) Matches(fingerprint, fph string) bool {
	return subtle.ConstantTimeCompare([]byte(f.Hash(fingerprint)), []byte(fph)) == 1
}

// EqualHash compares two raw binding hashes in constant time.
func EqualHash(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
