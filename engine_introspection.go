package leadAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
)

// ListChains returns the live refresh chains of subjectID, oldest first.
// It does not write; expired entries linger in the index until the next
// Issue for the subject prunes them.
// The view excludes nonce and device hashes.
func (e *Engine) ListChains(ctx context.Context, subjectID string) ([]ChainInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if subjectID == "" {
		return nil, ErrInvalidPrincipal
	}

	chains, err := e.flows.ListChains(ctx, subjectID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, unavailable(err)
	}

	out := make([]ChainInfo, 0, len(chains))
	for _, c := range chains {
		out = append(out, toChainInfo(c))
	}
	return out, nil
}

// ActiveChainCount returns the number of live chains of subjectID.
func (e *Engine) ActiveChainCount(ctx context.Context, subjectID string) (int, error) {
	chains, err := e.ListChains(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	return len(chains), nil
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Health probes the backing store. Stores without a Ping method are probed
// with a read of a key that never exists.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	if p, ok := e.store.(pinger); ok {
		latency, err := p.Ping(ctx)
		return HealthStatus{
			StoreAvailable: err == nil,
			StoreLatency:   latency,
		}
	}

	start := time.Now()
	_, _, err := e.store.Get(ctx, e.config.Chain.KeyPrefix+":health")
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   time.Since(start),
	}
}

func toChainInfo(c *chain.State) ChainInfo {
	return ChainInfo{
		ChainID:        c.ChainID,
		OrganizationID: c.OrganizationID,
		Role:           Role(c.Role),
		Generation:     c.Generation,
		LastTokenID:    c.LastTokenID,
		CreatedAt:      time.Unix(c.CreatedAt, 0),
		ExpiresAt:      time.Unix(c.ExpiresAt, 0),
	}
}
