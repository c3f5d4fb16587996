package leadAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRotateConcurrencySingleWinner(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	pair := mustIssue(t, env.engine, agentPrincipal(), deviceF1)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Rotate(context.Background(), pair.RefreshToken, deviceF1)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrChainNotFound) {
			fail++
			continue
		}
		t.Fatalf("unexpected rotate error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotate success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d rotate failures, got %d", n-1, fail)
	}

	chains, err := env.engine.ListChains(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list chains: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("racing rotations count as reuse; expected the chain to be gone, got %+v", chains)
	}
}

func TestReuseRevokesSubjectChains(t *testing.T) {
	tests := []struct {
		name          string
		revokeSubject bool
		wantOther     error
	}{
		{name: "subject wide", revokeSubject: true, wantOther: ErrRevoked},
		{name: "chain only", revokeSubject: false, wantOther: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Security.RevokeSubjectOnReuse = tt.revokeSubject
			env := newEngineEnv(t, cfg)
			ctx := context.Background()

			stolen := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
			other := mustIssue(t, env.engine, agentPrincipal(), deviceF2)

			if _, err := env.engine.Rotate(ctx, stolen.RefreshToken, deviceF1); err != nil {
				t.Fatalf("rotate failed: %v", err)
			}
			if _, err := env.engine.Rotate(ctx, stolen.RefreshToken, deviceF1); !errors.Is(err, ErrReuseDetected) {
				t.Fatalf("expected ErrReuseDetected, got %v", err)
			}

			_, err := env.engine.Verify(ctx, other.AccessToken, deviceF2)
			if tt.wantOther == nil && err != nil {
				t.Fatalf("other device should survive, got %v", err)
			}
			if tt.wantOther != nil && !errors.Is(err, tt.wantOther) {
				t.Fatalf("expected %v for other device, got %v", tt.wantOther, err)
			}

			count, err := env.engine.ActiveChainCount(ctx, "user-1")
			if err != nil {
				t.Fatalf("active chain count: %v", err)
			}
			want := 1
			if tt.revokeSubject {
				want = 0
			}
			if count != want {
				t.Fatalf("expected %d live chains, got %d", want, count)
			}
		})
	}
}
