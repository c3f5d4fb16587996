package leadAuth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func redisSnapshot(t *testing.T, mr *miniredis.Miniredis) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, k := range mr.Keys() {
		v, err := mr.Get(k)
		if err != nil {
			t.Fatalf("read %q: %v", k, err)
		}
		out[k] = v
	}
	return out
}

func TestSecurityInvariantVerifyNeverWrites(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	before := redisSnapshot(t, env.mr)
	for i := 0; i < 10; i++ {
		if _, err := env.engine.Verify(ctx, pair.AccessToken, deviceF1); err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		_, _ = env.engine.Verify(ctx, pair.AccessToken, deviceF2)
		_, _ = env.engine.Verify(ctx, "garbage", deviceF1)
	}
	after := redisSnapshot(t, env.mr)

	if len(before) != len(after) {
		t.Fatalf("verify changed key count: %d -> %d", len(before), len(after))
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("verify changed %q", k)
		}
	}
}

func TestSecurityInvariantNoRawSecretsInStore(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	rotated, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	var nonces [][]byte
	for _, tok := range []string{pair.RefreshToken, rotated.RefreshToken} {
		claims := &jwt.RefreshClaims{}
		if _, _, err := gjwt.NewParser().ParseUnverified(tok, claims); err != nil {
			t.Fatalf("parse refresh: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(claims.Nonce)
		if err != nil {
			t.Fatalf("decode nonce: %v", err)
		}
		nonces = append(nonces, raw)
	}

	for k, v := range redisSnapshot(t, env.mr) {
		if strings.Contains(k, deviceF1) || strings.Contains(v, deviceF1) {
			t.Fatalf("raw fingerprint stored under %q", k)
		}
		for _, n := range nonces {
			if strings.Contains(v, string(n)) || strings.Contains(v, base64.RawURLEncoding.EncodeToString(n)) {
				t.Fatalf("raw nonce stored under %q", k)
			}
		}
		if strings.Contains(v, pair.RefreshToken) || strings.Contains(v, rotated.AccessToken) {
			t.Fatalf("token stored under %q", k)
		}
	}
}

func TestSecurityInvariantTokensCarryOnlyHashedBinding(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	claims := &jwt.AccessClaims{}
	tok, _, err := gjwt.NewParser().ParseUnverified(pair.AccessToken, claims)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if alg := tok.Header["alg"]; alg != "EdDSA" {
		t.Fatalf("expected EdDSA, got %v", alg)
	}
	if claims.FingerprintHash == "" || claims.FingerprintHash == deviceF1 {
		t.Fatalf("fingerprint must be hashed, got %q", claims.FingerprintHash)
	}
	if strings.Contains(pair.AccessToken, base64.RawURLEncoding.EncodeToString([]byte(deviceF1))) {
		t.Fatal("access token leaks the raw fingerprint")
	}
}

func TestSecurityInvariantStoreFailureIsNotADecision(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.RetryAttempts = 1
	env := newEngineEnv(t, cfg)
	ctx := context.Background()
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	env.mr.SetError("ERR simulated outage")

	_, err := env.engine.Verify(ctx, pair.AccessToken, deviceF1)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	for _, decision := range []error{ErrRevoked, ErrMalformed, ErrExpired, ErrBindingMismatch} {
		if errors.Is(err, decision) {
			t.Fatalf("store failure reported as %v", decision)
		}
	}

	_, err = env.engine.Rotate(ctx, pair.RefreshToken, deviceF1)
	if errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrChainNotFound) {
		t.Fatalf("store failure reported as a chain decision: %v", err)
	}
}

func TestSecurityInvariantReplayDeletesChainKey(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	chainKey := "la:c:user-1:" + pair.ChainID
	if !env.mr.Exists(chainKey) {
		t.Fatalf("expected chain key %q", chainKey)
	}

	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, deviceF1); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}
	if env.mr.Exists(chainKey) {
		t.Fatal("replay must delete the chain key")
	}
}

func TestSecurityInvariantListChainsNeverWrites(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()
	mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	evicted := mustIssue(t, env.engine, agentPrincipal(), deviceF2)
	// leave an index entry whose chain the store has already evicted
	env.mr.Del("la:c:user-1:" + evicted.ChainID)

	before := redisSnapshot(t, env.mr)
	for i := 0; i < 3; i++ {
		chains, err := env.engine.ListChains(ctx, "user-1")
		if err != nil {
			t.Fatalf("list chains: %v", err)
		}
		if len(chains) != 1 {
			t.Fatalf("expected one live chain, got %d", len(chains))
		}
	}
	after := redisSnapshot(t, env.mr)

	if len(before) != len(after) {
		t.Fatalf("list changed key count: %d -> %d", len(before), len(after))
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("list changed %q", k)
		}
	}
}
