package leadAuth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/leadAuth/store"
)

func TestIntrospectionListChainsTracksLifecycle(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()

	a := mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	env.clock.Advance(time.Second)
	b := mustIssue(t, env.engine, agentPrincipal(), deviceF2)

	count, err := env.engine.ActiveChainCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveChainCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active chains, got %d", count)
	}

	if _, err := env.engine.Rotate(ctx, b.RefreshToken, deviceF2); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	list, err := env.engine.ListChains(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListChains failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(list))
	}
	if list[0].ChainID != a.ChainID || list[1].ChainID != b.ChainID {
		t.Fatalf("expected oldest first, got %s then %s", list[0].ChainID, list[1].ChainID)
	}
	if list[0].Generation != 0 || list[1].Generation != 1 {
		t.Fatalf("unexpected generations %d and %d", list[0].Generation, list[1].Generation)
	}
	if list[1].OrganizationID != "org-1" || list[1].Role != RoleAgent {
		t.Fatalf("unexpected chain snapshot: %+v", list[1])
	}
	if !list[0].ExpiresAt.Equal(list[0].CreatedAt.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected chain expiry: %+v", list[0])
	}

	if err := env.engine.Logout(ctx, a.AccessToken, deviceF1); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	count, err = env.engine.ActiveChainCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveChainCount after logout failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active chain after logout, got %d", count)
	}
}

func TestIntrospectionSubjectIsolation(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()

	mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	other := agentPrincipal()
	other.SubjectID = "user-2"
	other.OrganizationID = "org-2"
	mustIssue(t, env.engine, other, deviceF1)

	list, err := env.engine.ListChains(ctx, "user-2")
	if err != nil {
		t.Fatalf("ListChains failed: %v", err)
	}
	if len(list) != 1 || list[0].OrganizationID != "org-2" {
		t.Fatalf("expected only user-2's chain, got %+v", list)
	}

	if _, err := env.engine.ListChains(ctx, ""); !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("expected ErrInvalidPrincipal, got %v", err)
	}
	if n, err := env.engine.ActiveChainCount(ctx, "nobody"); err != nil || n != 0 {
		t.Fatalf("expected 0 chains for unknown subject, got %d, %v", n, err)
	}
}

func TestIntrospectionExpiredChainsDisappear(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))
	ctx := context.Background()

	mustIssue(t, env.engine, agentPrincipal(), deviceF1)
	env.clock.Advance(7*24*time.Hour + time.Second)

	list, err := env.engine.ListChains(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListChains failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected expired chain to be gone, got %+v", list)
	}
}

func TestHealthReportsStoreState(t *testing.T) {
	env := newEngineEnv(t, testConfig(t))

	status := env.engine.Health(context.Background())
	if !status.StoreAvailable {
		t.Fatal("expected store to be available")
	}

	env.mr.SetError("ERR simulated outage")
	status = env.engine.Health(context.Background())
	if status.StoreAvailable {
		t.Fatal("expected store to be unavailable during the outage")
	}
}

// pingless hides RedisStore.Ping so Health falls back to a read.
type pingless struct {
	store.Store
}

func TestHealthWithoutPinger(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	e, err := New().
		WithConfig(testConfig(t)).
		WithStore(pingless{store.NewRedisStore(rdb, time.Second)}).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer e.Close()

	if !e.Health(context.Background()).StoreAvailable {
		t.Fatal("expected store to be available")
	}
	if mr.Exists("la:health") {
		t.Fatal("health probe must not write")
	}

	var nilEngine *Engine
	if nilEngine.Health(context.Background()).StoreAvailable {
		t.Fatal("nil engine must report unavailable")
	}
}
