// Command leadauth-loadtest drives Issue, Verify and Rotate against Redis
// (or an embedded miniredis) and prints latency percentiles per phase.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	leadAuth "github.com/MrEthical07/leadAuth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type chainState struct {
	fingerprint string
	refresh     string
	access      string
	mu          sync.Mutex
}

func main() {
	var (
		chains      = flag.Int("chains", 10000, "number of chains to issue")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (verify + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "la", "chain key prefix")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *chains <= 0 || *concurrency <= 0 || *ops <= 0 {
		logger.Error("chains, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Error("failed to start miniredis", "error", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		logger.Info("using miniredis", "addr", addr)
	} else {
		cleanup = func() {}
		logger.Info("using redis", "addr", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		PoolSize: *concurrency,
	})
	defer client.Close()

	engine, err := buildEngine(client, *prefix, logger)
	if err != nil {
		logger.Error("engine build failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	states := make([]chainState, *chains)
	logger.Info("issuing chains", "count", *chains)
	startSeed := time.Now()
	for i := range states {
		fp := fmt.Sprintf("device-%d", i)
		pair, err := engine.Issue(ctx, leadAuth.Principal{
			SubjectID:      fmt.Sprintf("user-%d", i),
			OrganizationID: fmt.Sprintf("org-%d", i%50),
			Role:           leadAuth.RoleAgent,
			Permissions:    []string{"leads:read", "leads:write"},
		}, fp)
		if err != nil {
			logger.Error("issue failed", "error", err)
			os.Exit(1)
		}
		states[i] = chainState{fingerprint: fp, refresh: pair.RefreshToken, access: pair.AccessToken}
	}
	logger.Info("issued", "elapsed", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		access, fp := s.access, s.fingerprint
		s.mu.Unlock()
		_, err := engine.Verify(ctx, access, fp)
		return err
	})

	rotateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		s := &states[r.IntN(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Rotate(ctx, s.refresh, s.fingerprint)
		if err != nil {
			return err
		}
		s.refresh, s.access = pair.RefreshToken, pair.AccessToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("rotate", rotateStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("rotate_success=%d reuse_detected=%d store_unavailable=%d\n",
		snap.Counters[leadAuth.MetricRotateSuccess],
		snap.Counters[leadAuth.MetricRefreshReuseDetected],
		snap.Counters[leadAuth.MetricStoreUnavailable],
	)
}

func buildEngine(client redis.UniversalClient, prefix string, logger *slog.Logger) (*leadAuth.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	cfg := leadAuth.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Fingerprint.Salt = salt
	cfg.Chain.KeyPrefix = prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return leadAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		Build()
}

func runPhase(ops, concurrency int, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
