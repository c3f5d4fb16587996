package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/leadAuth/store"
)

var (
	// ErrIndexContention is returned when a subject or device index update
	// keeps losing its compare-and-swap.
	ErrIndexContention = errors.New("chain index contention")
	// ErrExpired is returned by Load for a chain past its expiry that the
	// store has not evicted yet.
	ErrExpired = errors.New("chain expired")
)

const indexAttempts = 8

// Repository stores chains and the per-subject and per-device indexes over
// them.
//
// Keys:
//
//	<prefix>:c:<subject>:<chainID>   chain state blob
//	<prefix>:d:<subject>:<device>    chain id bound to a device, empty when unbound
//	<prefix>:s:<subject>             newline separated chain ids
type Repository struct {
	store    store.Store
	prefix   string
	indexTTL time.Duration
	now      func() time.Time
}

// NewRepository returns a Repository. indexTTL is applied to the subject
// and device indexes and must cover the longest chain lifetime.
func NewRepository(s store.Store, prefix string, indexTTL time.Duration, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{store: s, prefix: prefix, indexTTL: indexTTL, now: now}
}

func (r *Repository) chainKey(subjectID, chainID string) string {
	return r.prefix + ":c:" + subjectID + ":" + chainID
}

func (r *Repository) deviceKey(subjectID string, device [32]byte) string {
	return r.prefix + ":d:" + subjectID + ":" + hex.EncodeToString(device[:])
}

func (r *Repository) subjectKey(subjectID string) string {
	return r.prefix + ":s:" + subjectID
}

func (r *Repository) ttl(s *State) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(r.now())
}

// Create persists a new chain and binds it to its device. A chain previously
// bound to the same (subject, device) is deleted and returned so the caller
// can revoke its last access token. Index entries whose chain is gone or
// expired are pruned from the subject index on the way.
func (r *Repository) Create(ctx context.Context, s *State) (*State, error) {
	ttl := r.ttl(s)
	if ttl <= 0 {
		return nil, errors.New("chain already expired")
	}
	data, err := Encode(s)
	if err != nil {
		return nil, err
	}

	ok, err := r.store.CompareAndSwap(ctx, r.chainKey(s.SubjectID, s.ChainID), nil, data, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("chain id collision")
	}

	if err := r.addToIndex(ctx, s.SubjectID, s.ChainID); err != nil {
		return nil, errors.Join(err, r.store.Delete(ctx, r.chainKey(s.SubjectID, s.ChainID)))
	}

	previousID, err := r.bindDevice(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(previousID) == 0 || string(previousID) == s.ChainID {
		return nil, nil
	}

	previous, _, err := r.Load(ctx, s.SubjectID, string(previousID))
	if err != nil && !errors.Is(err, ErrCorrupt) && !errors.Is(err, ErrExpired) {
		return nil, err
	}
	if err := r.store.Delete(ctx, r.chainKey(s.SubjectID, string(previousID))); err != nil {
		return nil, err
	}
	if err := r.removeFromIndex(ctx, s.SubjectID, string(previousID)); err != nil {
		return nil, err
	}
	return previous, nil
}

// bindDevice points the device key of s at s.ChainID and returns the chain
// id it displaced. Every successful swap displaces exactly one binding, so
// concurrent logins on one device leave a single chain bound. When the swap
// keeps losing, s is removed again.
func (r *Repository) bindDevice(ctx context.Context, s *State) ([]byte, error) {
	key := r.deviceKey(s.SubjectID, s.DeviceHash)
	for attempt := 0; attempt < indexAttempts; attempt++ {
		current, found, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var expected []byte
		if found {
			expected = current
			if expected == nil {
				expected = []byte{}
			}
		}
		ok, err := r.store.CompareAndSwap(ctx, key, expected, []byte(s.ChainID), r.indexTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return current, nil
		}
	}

	cleanup := r.store.Delete(ctx, r.chainKey(s.SubjectID, s.ChainID))
	if cleanup == nil {
		cleanup = r.removeFromIndex(ctx, s.SubjectID, s.ChainID)
	}
	return nil, errors.Join(ErrIndexContention, cleanup)
}

// Load reads a chain. The raw blob is returned alongside the decoded state
// and must be passed back to Swap as the expected value. A missing chain
// yields (nil, nil, nil). A chain past its ExpiresAt that the store still
// holds is returned with ErrExpired so its last access token can be revoked.
func (r *Repository) Load(ctx context.Context, subjectID, chainID string) (*State, []byte, error) {
	data, found, err := r.store.Get(ctx, r.chainKey(subjectID, chainID))
	if err != nil || !found {
		return nil, nil, err
	}
	s, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	if s.SubjectID != subjectID || s.ChainID != chainID {
		return nil, nil, ErrCorrupt
	}
	if s.Expired(r.now()) {
		return s, data, ErrExpired
	}
	return s, data, nil
}

// Swap replaces the chain blob expected with next in a single
// compare-and-swap. The TTL follows next.ExpiresAt. A false result means the
// chain changed or vanished since it was read.
func (r *Repository) Swap(ctx context.Context, expected []byte, next *State) (bool, error) {
	if expected == nil {
		return false, errors.New("swap requires the previously read blob")
	}
	ttl := r.ttl(next)
	if ttl <= 0 {
		return false, errors.New("chain already expired")
	}
	data, err := Encode(next)
	if err != nil {
		return false, err
	}
	return r.store.CompareAndSwap(ctx, r.chainKey(next.SubjectID, next.ChainID), expected, data, ttl)
}

// Delete removes the chain and unbinds it from its device and subject.
// Deleting a missing chain is not an error.
func (r *Repository) Delete(ctx context.Context, s *State) error {
	if err := r.store.Delete(ctx, r.chainKey(s.SubjectID, s.ChainID)); err != nil {
		return err
	}

	deviceKey := r.deviceKey(s.SubjectID, s.DeviceHash)
	bound, found, err := r.store.Get(ctx, deviceKey)
	if err != nil {
		return err
	}
	if found && string(bound) == s.ChainID {
		// empty means unbound. A login that rebinds the device after the
		// read keeps its binding because the swap fails.
		if _, err := r.store.CompareAndSwap(ctx, deviceKey, bound, []byte{}, 0); err != nil {
			return err
		}
	}

	return r.removeFromIndex(ctx, s.SubjectID, s.ChainID)
}

// List returns the live chains of subjectID ordered by chain id, which is
// creation order. It only reads: index entries whose chain is gone or
// expired are skipped and left for the next Create to prune.
func (r *Repository) List(ctx context.Context, subjectID string) ([]*State, error) {
	ids, err := r.indexIDs(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	chains := make([]*State, 0, len(ids))
	for _, id := range ids {
		s, live, err := r.loadLive(ctx, subjectID, id)
		if err != nil {
			return nil, err
		}
		if live {
			chains = append(chains, s)
		}
	}

	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })
	return chains, nil
}

// loadLive is Load with gone, expired and corrupt chains folded into
// live == false.
func (r *Repository) loadLive(ctx context.Context, subjectID, chainID string) (*State, bool, error) {
	s, _, err := r.Load(ctx, subjectID, chainID)
	switch {
	case errors.Is(err, ErrCorrupt), errors.Is(err, ErrExpired):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return s, s != nil, nil
}

func (r *Repository) indexIDs(ctx context.Context, subjectID string) ([]string, error) {
	data, found, err := r.store.Get(ctx, r.subjectKey(subjectID))
	if err != nil || !found {
		return nil, err
	}
	return splitIndex(data), nil
}

func (r *Repository) addToIndex(ctx context.Context, subjectID, chainID string) error {
	ids, err := r.indexIDs(ctx, subjectID)
	if err != nil {
		return err
	}
	stale := make(map[string]struct{})
	for _, id := range ids {
		if id == chainID {
			continue
		}
		_, live, err := r.loadLive(ctx, subjectID, id)
		if err != nil {
			return err
		}
		if !live {
			stale[id] = struct{}{}
		}
	}

	return r.updateIndex(ctx, subjectID, r.indexTTL, func(ids []string) ([]string, bool) {
		out := make([]string, 0, len(ids)+1)
		changed := false
		present := false
		for _, id := range ids {
			if _, drop := stale[id]; drop {
				changed = true
				continue
			}
			if id == chainID {
				present = true
			}
			out = append(out, id)
		}
		if !present {
			out = append(out, chainID)
			changed = true
		}
		return out, changed
	})
}

func (r *Repository) removeFromIndex(ctx context.Context, subjectID, chainID string) error {
	return r.updateIndex(ctx, subjectID, 0, func(ids []string) ([]string, bool) {
		out := ids[:0]
		changed := false
		for _, id := range ids {
			if id == chainID {
				changed = true
				continue
			}
			out = append(out, id)
		}
		return out, changed
	})
}

func (r *Repository) updateIndex(ctx context.Context, subjectID string, ttl time.Duration, mutate func([]string) ([]string, bool)) error {
	key := r.subjectKey(subjectID)
	for attempt := 0; attempt < indexAttempts; attempt++ {
		current, found, err := r.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found && ttl <= 0 {
			return nil
		}

		ids, changed := mutate(splitIndex(current))
		if !changed {
			return nil
		}

		var expected []byte
		if found {
			expected = current
			if expected == nil {
				expected = []byte{}
			}
		}
		ok, err := r.store.CompareAndSwap(ctx, key, expected, joinIndex(ids), ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrIndexContention
}

func splitIndex(data []byte) []string {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return strings.Split(string(data), "\n")
}

func joinIndex(ids []string) []byte {
	return []byte(strings.Join(ids, "\n"))
}
