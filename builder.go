package leadAuth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/leadAuth/chain"
	"github.com/MrEthical07/leadAuth/internal"
	"github.com/MrEthical07/leadAuth/internal/audit"
	"github.com/MrEthical07/leadAuth/internal/flows"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/permission"
	"github.com/MrEthical07/leadAuth/store"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single use: Build fails when
// called a second time.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store
	keys   jwt.KeySource

	capabilities []string
	roleGrants   map[Role][]string

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores chains and revocations in Redis. Any client satisfying
// redis.UniversalClient works, including cluster and failover clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses s instead of Redis. It takes precedence over WithRedis.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithKeySource supplies signing and verification keys, overriding the
// keys in Config.Token. Use it to rotate keys at runtime.
func (b *Builder) WithKeySource(keys jwt.KeySource) *Builder {
	b.keys = keys
	return b
}

// WithCapabilities registers the capability names principals may carry.
// Without it any capability string is accepted.
func (b *Builder) WithCapabilities(capabilities []string) *Builder {
	b.capabilities = append([]string(nil), capabilities...)
	return b
}

// WithRoleGrants sets the capabilities each role receives on Issue in
// addition to the principal's own. Granted capabilities must be registered.
func (b *Builder) WithRoleGrants(grants map[Role][]string) *Builder {
	b.roleGrants = make(map[Role][]string, len(grants))
	for role, caps := range grants {
		b.roleGrants[role] = append([]string(nil), caps...)
	}
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failures and reuse warnings.
// Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token timestamps, chain expiry and
// revocation TTLs.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the store, codec and flows and
// starts the audit dispatcher. Every failure wraps ErrConfiguration.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		logger.Warn("leadauth config warning", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	backing := b.store
	if backing == nil {
		if b.redis == nil {
			return nil, fmt.Errorf("%w: a store or redis client is required", ErrConfiguration)
		}
		backing = store.NewRedisStore(b.redis, cfg.Store.OperationTimeout)
	}
	st := store.NewRetrying(backing, cfg.Store.RetryAttempts, cfg.Store.RetryBackoff)

	registry, roleManager, err := b.buildPermissions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	keys := b.keys
	if keys == nil {
		keys = staticKeys(cfg.Token)
	}
	if _, err := keys.SigningKey(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	codec, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		Keys:          keys,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		MaxFutureIAT:  cfg.Token.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	fingerprints, err := internal.NewFingerprinter(cfg.Fingerprint.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	chains := chain.NewRepository(st, cfg.Chain.KeyPrefix, indexTTL(cfg), now)
	revocations := store.NewRevocations(st, cfg.Chain.KeyPrefix, now).WithGrace(cfg.Token.Leeway)
	lifetimes := flows.Lifetimes{
		AccessTTL:        cfg.Token.AccessTTL,
		RefreshTTL:       cfg.Token.RefreshTTL,
		AbsoluteLifetime: cfg.Chain.AbsoluteLifetime,
	}
	warn := func(msg string, args ...any) {
		logger.Warn("leadauth: "+msg, args...)
	}

	verifyDeps := flows.VerifyDeps{
		Codec:        codec,
		Revocations:  revocations,
		Fingerprints: fingerprints,
	}

	engine := &Engine{
		config:      cfg,
		registry:    registry,
		roleManager: roleManager,
		store:       backing,
		logger:      logger,
		clock:       now,
		metrics:     NewMetrics(cfg.Metrics),
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   []string{auditEventRefreshReuseDetected},
		OnDrop:     func(string) { engine.metrics.Inc(MetricAuditDropped) },
	}, b.auditSink)
	engine.flows = flows.New(flows.Deps{
		Issue: flows.IssueDeps{
			Codec:        codec,
			Chains:       chains,
			Revocations:  revocations,
			Fingerprints: fingerprints,
			Capabilities: registry,
			Roles:        roleManager,
			Lifetimes:    lifetimes,
			Now:          now,
			Warn:         warn,
		},
		Verify: verifyDeps,
		Rotate: flows.RotateDeps{
			Codec:                codec,
			Chains:               chains,
			Revocations:          revocations,
			Fingerprints:         fingerprints,
			Lifetimes:            lifetimes,
			RevokeSubjectOnReuse: cfg.Security.RevokeSubjectOnReuse,
			Now:                  now,
			Warn:                 warn,
		},
		Sessions: flows.SessionDeps{
			Verify:      verifyDeps,
			Chains:      chains,
			Revocations: revocations,
			Warn:        warn,
		},
	})

	b.built = true

	return engine, nil
}

func (b *Builder) buildPermissions() (*permission.Registry, *permission.RoleManager, error) {
	var registry *permission.Registry
	if len(b.capabilities) > 0 {
		registry = permission.NewRegistry()
		for _, c := range b.capabilities {
			if err := registry.Register(c); err != nil {
				return nil, nil, fmt.Errorf("capability %q: %w", c, err)
			}
		}
		registry.Freeze()
	}

	roleManager := permission.NewRoleManager(registry)
	for role, caps := range b.roleGrants {
		if err := roleManager.Grant(role, caps); err != nil {
			return nil, nil, fmt.Errorf("role %q: %w", role, err)
		}
	}
	roleManager.Freeze()

	return registry, roleManager, nil
}

func staticKeys(t TokenConfig) jwt.StaticKeySource {
	src := jwt.StaticKeySource{
		Current: jwt.Key{
			ID:      t.KeyID,
			Private: cloneBytes(t.PrivateKey),
			Public:  cloneBytes(t.PublicKey),
		},
	}
	for _, k := range t.RetiredKeys {
		src.Retired = append(src.Retired, jwt.Key{
			ID:      k.ID,
			Private: cloneBytes(k.PrivateKey),
			Public:  cloneBytes(k.PublicKey),
		})
	}
	return src
}

// indexTTL must outlive every chain it lists. Uncapped chains get four
// refresh lifetimes; Create prunes entries whose chain is gone.
func indexTTL(cfg Config) time.Duration {
	if cfg.Chain.AbsoluteLifetime > 0 {
		if cfg.Chain.AbsoluteLifetime > cfg.Token.RefreshTTL {
			return cfg.Chain.AbsoluteLifetime
		}
		return cfg.Token.RefreshTTL
	}
	return 4 * cfg.Token.RefreshTTL
}
