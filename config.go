package leadAuth

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Builder.Build validates and clones it.
type Config struct {
	Token       TokenConfig
	Fingerprint FingerprintConfig
	Chain       ChainConfig
	Store       StoreConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls token lifetimes, signing and claim validation.
//
// KeyID/PrivateKey/PublicKey describe the active signing key. RetiredKeys are
// still accepted for verification so tokens minted before a key rollover
// stay valid until they expire. A Builder.WithKeySource overrides all of them.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	PrivateKey    []byte
	PublicKey     []byte
	RetiredKeys   []VerificationKey
}

// VerificationKey is a retired key. For hs256 the secret goes in PrivateKey.
type VerificationKey struct {
	ID         string
	PrivateKey []byte
	PublicKey  []byte
}

/*
====================================
FINGERPRINT CONFIG
====================================
*/

// FingerprintConfig holds the secret salt of the device fingerprint hash.
// Changing the salt invalidates every outstanding token binding.
type FingerprintConfig struct {
	Salt []byte
}

/*
====================================
CHAIN CONFIG
====================================
*/

// ChainConfig controls refresh chain storage.
type ChainConfig struct {
	KeyPrefix string
	// AbsoluteLifetime caps a chain's total age regardless of rotation.
	// Zero means chains live as long as they keep rotating.
	AbsoluteLifetime time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds store calls. Only idempotent operations are retried.
type StoreConfig struct {
	OperationTimeout time.Duration
	RetryAttempts    int
	RetryBackoff     time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool
	// RevokeSubjectOnReuse tears down every chain of a subject when reuse
	// of a spent refresh token is detected, not just the affected chain.
	RevokeSubjectOnReuse bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a development configuration. Keys and the
// fingerprint salt are left empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "leadauth",
			Leeway:        5 * time.Second,
			MaxFutureIAT:  10 * time.Minute,
			KeyID:         "primary",
		},
		Chain: ChainConfig{
			KeyPrefix:        "la",
			AbsoluteLifetime: 30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			OperationTimeout: 500 * time.Millisecond,
			RetryAttempts:    3,
			RetryBackoff:     20 * time.Millisecond,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RevokeSubjectOnReuse: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// HighSecurityConfig returns DefaultConfig tightened for production:
// shorter lifetimes, no leeway beyond a second and a one day absolute cap.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessTTL = 2 * time.Minute
	cfg.Token.RefreshTTL = 12 * time.Hour
	cfg.Token.Leeway = time.Second
	cfg.Token.MaxFutureIAT = time.Minute
	cfg.Chain.AbsoluteLifetime = 24 * time.Hour
	cfg.Security.ProductionMode = true
	cfg.Security.RevokeSubjectOnReuse = true
	cfg.Audit.Enabled = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.RetiredKeys != nil {
		out.Token.RetiredKeys = make([]VerificationKey, len(cfg.Token.RetiredKeys))
		for i, k := range cfg.Token.RetiredKeys {
			out.Token.RetiredKeys[i] = VerificationKey{
				ID:         k.ID,
				PrivateKey: cloneBytes(k.PrivateKey),
				PublicKey:  cloneBytes(k.PublicKey),
			}
		}
	}
	out.Fingerprint.Salt = cloneBytes(cfg.Fingerprint.Salt)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

const (
	minHS256KeyLength   = 32
	minFingerprintSalt  = 16
	maxFingerprintSalt  = 64
	maxRetryAttempts    = 10
	maxLeeway           = 2 * time.Minute
	maxMaxFutureIAT     = 24 * time.Hour
	maxKeyPrefixLength  = 32
	maxRetryBackoffStep = 5 * time.Second
)

// Validate reports the first structural problem in c. It does not check
// key material beyond lengths; Build does that when it creates the codec.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("Token AccessTTL must be shorter than RefreshTTL")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported token signing method")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > maxLeeway {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.MaxFutureIAT < 0 || c.Token.MaxFutureIAT > maxMaxFutureIAT {
		return errors.New("Token MaxFutureIAT must be between 0 and 24h")
	}
	if len(c.Token.PrivateKey) > 0 && strings.TrimSpace(c.Token.KeyID) == "" {
		return errors.New("Token KeyID is required with PrivateKey")
	}
	if c.Security.ProductionMode && c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) > 0 && len(c.Token.PrivateKey) < minHS256KeyLength {
		return errors.New("hs256 key must be at least 32 bytes in production mode")
	}
	for _, k := range c.Token.RetiredKeys {
		if strings.TrimSpace(k.ID) == "" {
			return errors.New("Token RetiredKeys entries require an ID")
		}
		if k.ID == c.Token.KeyID {
			return errors.New("Token RetiredKeys must not reuse the active KeyID")
		}
	}

	// Fingerprint
	if n := len(c.Fingerprint.Salt); n < minFingerprintSalt || n > maxFingerprintSalt {
		return errors.New("Fingerprint Salt must be between 16 and 64 bytes")
	}

	// Chain
	if c.Chain.KeyPrefix == "" || len(c.Chain.KeyPrefix) > maxKeyPrefixLength {
		return errors.New("Chain KeyPrefix must be 1-32 characters")
	}
	if strings.ContainsAny(c.Chain.KeyPrefix, ": \n") {
		return errors.New("Chain KeyPrefix must not contain ':' or whitespace")
	}
	if c.Chain.AbsoluteLifetime < 0 {
		return errors.New("Chain AbsoluteLifetime must be >= 0")
	}
	if c.Chain.AbsoluteLifetime > 0 && c.Chain.AbsoluteLifetime < c.Token.AccessTTL {
		return errors.New("Chain AbsoluteLifetime must be >= Token AccessTTL")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if c.Store.RetryAttempts < 1 || c.Store.RetryAttempts > maxRetryAttempts {
		return errors.New("Store RetryAttempts must be between 1 and 10")
	}
	if c.Store.RetryBackoff < 0 || c.Store.RetryBackoff > maxRetryBackoffStep {
		return errors.New("Store RetryBackoff must be between 0 and 5s")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
