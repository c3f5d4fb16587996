package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Revocation reasons written into records.
const (
	ReasonLogout   = "logout"
	ReasonReuse    = "reuse"
	ReasonManual   = "revoked"
	ReasonConsumed = "consumed"
	ReasonExpired  = "expired"
)

// ErrCorruptRecord is returned when a stored revocation record cannot be parsed.
var ErrCorruptRecord = errors.New("corrupt revocation record")

// Record is one revocation entry. Successor is only set on consumed-nonce
// records and names the access token id minted by that rotation.
type Record struct {
	Reason    string
	ExpiresAt time.Time
	Successor string
}

// Revocations keeps revoked access token ids and consumed refresh nonces.
// Every record expires together with the credential it describes, so the
// set never grows past the live token population.
type Revocations struct {
	store  Store
	prefix string
	now    func() time.Time
	grace  time.Duration
}

// NewRevocations returns a Revocations writing under prefix.
func NewRevocations(s Store, prefix string, now func() time.Time) *Revocations {
	if now == nil {
		now = time.Now
	}
	return &Revocations{store: s, prefix: prefix, now: now}
}

// WithGrace keeps every record for d past the expiry it was written with.
// Set it to the codec leeway so a revoked token cannot verify again inside
// the leeway window.
func (r *Revocations) WithGrace(d time.Duration) *Revocations {
	if d > 0 {
		r.grace = d
	}
	return r
}

func (r *Revocations) tokenKey(id string) string {
	return r.prefix + ":rv:" + id
}

func (r *Revocations) nonceKey(id string) string {
	return r.prefix + ":rn:" + id
}

// Revoke marks the access token id as revoked until expiresAt. Tokens that
// have already expired are skipped.
func (r *Revocations) Revoke(ctx context.Context, tokenID, reason string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	return r.put(ctx, r.tokenKey(tokenID), Record{Reason: reason, ExpiresAt: expiresAt})
}

// Lookup returns the revocation record for an access token id.
func (r *Revocations) Lookup(ctx context.Context, tokenID string) (Record, bool, error) {
	return r.get(ctx, r.tokenKey(tokenID))
}

// MarkConsumed records that a refresh nonce was spent by a rotation that
// minted the access token successor.
func (r *Revocations) MarkConsumed(ctx context.Context, nonceID, successor string, expiresAt time.Time) error {
	return r.put(ctx, r.nonceKey(nonceID), Record{Reason: ReasonConsumed, ExpiresAt: expiresAt, Successor: successor})
}

// Consumed returns the consumed-nonce record for nonceID, if any.
func (r *Revocations) Consumed(ctx context.Context, nonceID string) (Record, bool, error) {
	return r.get(ctx, r.nonceKey(nonceID))
}

func (r *Revocations) put(ctx context.Context, key string, rec Record) error {
	ttl := rec.ExpiresAt.Add(r.grace).Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.store.Set(ctx, key, encodeRecord(rec), ttl)
}

func (r *Revocations) get(ctx context.Context, key string) (Record, bool, error) {
	data, found, err := r.store.Get(ctx, key)
	if err != nil || !found {
		return Record{}, false, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func encodeRecord(rec Record) []byte {
	var b strings.Builder
	b.WriteString(rec.Reason)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(rec.ExpiresAt.Unix(), 10))
	if rec.Successor != "" {
		b.WriteByte('|')
		b.WriteString(rec.Successor)
	}
	return []byte(b.String())
}

func decodeRecord(data []byte) (Record, error) {
	parts := strings.Split(string(data), "|")
	if len(parts) < 2 || len(parts) > 3 {
		return Record{}, ErrCorruptRecord
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	rec := Record{Reason: parts[0], ExpiresAt: time.Unix(unix, 0)}
	if len(parts) == 3 {
		rec.Successor = parts[2]
	}
	return rec, nil
}
