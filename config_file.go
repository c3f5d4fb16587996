package leadAuth

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfigFile when the file does not name
// its own. Values are standard base64.
const (
	EnvPrivateKey      = "LEADAUTH_PRIVATE_KEY"
	EnvPublicKey       = "LEADAUTH_PUBLIC_KEY"
	EnvFingerprintSalt = "LEADAUTH_FINGERPRINT_SALT"
)

// fileConfig is the YAML shape of Config. Secrets never live in the file;
// the *_env fields name the environment variables that hold them.
type fileConfig struct {
	Token struct {
		AccessTTL     *time.Duration `yaml:"access_ttl"`
		RefreshTTL    *time.Duration `yaml:"refresh_ttl"`
		SigningMethod string         `yaml:"signing_method"`
		Issuer        *string        `yaml:"issuer"`
		Audience      string         `yaml:"audience"`
		Leeway        *time.Duration `yaml:"leeway"`
		MaxFutureIAT  *time.Duration `yaml:"max_future_iat"`
		KeyID         string         `yaml:"key_id"`
		PrivateKeyEnv string         `yaml:"private_key_env"`
		PublicKeyEnv  string         `yaml:"public_key_env"`
		RetiredKeys   []struct {
			ID            string `yaml:"id"`
			PrivateKeyEnv string `yaml:"private_key_env"`
			PublicKeyEnv  string `yaml:"public_key_env"`
		} `yaml:"retired_keys"`
	} `yaml:"token"`
	Fingerprint struct {
		SaltEnv string `yaml:"salt_env"`
	} `yaml:"fingerprint"`
	Chain struct {
		KeyPrefix        string         `yaml:"key_prefix"`
		AbsoluteLifetime *time.Duration `yaml:"absolute_lifetime"`
	} `yaml:"chain"`
	Store struct {
		OperationTimeout *time.Duration `yaml:"operation_timeout"`
		RetryAttempts    *int           `yaml:"retry_attempts"`
		RetryBackoff     *time.Duration `yaml:"retry_backoff"`
	} `yaml:"store"`
	Security struct {
		ProductionMode       *bool `yaml:"production_mode"`
		RevokeSubjectOnReuse *bool `yaml:"revoke_subject_on_reuse"`
	} `yaml:"security"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize *int  `yaml:"buffer_size"`
		DropIfFull *bool `yaml:"drop_if_full"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled                 *bool `yaml:"enabled"`
		EnableLatencyHistograms *bool `yaml:"enable_latency_histograms"`
	} `yaml:"metrics"`
}

// LoadConfigFile reads a YAML configuration on top of DefaultConfig,
// resolves key material and the fingerprint salt from the environment and
// validates the result.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data, os.Getenv)
}

// ParseConfig is LoadConfigFile over in-memory YAML with an explicit
// environment lookup.
func ParseConfig(data []byte, getenv func(string) string) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := defaultConfig()
	if err := fc.apply(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config, getenv func(string) string) error {
	t := &cfg.Token
	setDuration(&t.AccessTTL, fc.Token.AccessTTL)
	setDuration(&t.RefreshTTL, fc.Token.RefreshTTL)
	setDuration(&t.Leeway, fc.Token.Leeway)
	setDuration(&t.MaxFutureIAT, fc.Token.MaxFutureIAT)
	if fc.Token.SigningMethod != "" {
		t.SigningMethod = strings.ToLower(fc.Token.SigningMethod)
	}
	if fc.Token.Issuer != nil {
		t.Issuer = *fc.Token.Issuer
	}
	if fc.Token.Audience != "" {
		t.Audience = fc.Token.Audience
	}
	if fc.Token.KeyID != "" {
		t.KeyID = fc.Token.KeyID
	}

	var err error
	if t.PrivateKey, err = secretFromEnv(getenv, fc.Token.PrivateKeyEnv, EnvPrivateKey); err != nil {
		return err
	}
	if t.PublicKey, err = secretFromEnv(getenv, fc.Token.PublicKeyEnv, EnvPublicKey); err != nil {
		return err
	}
	for _, rk := range fc.Token.RetiredKeys {
		key := VerificationKey{ID: rk.ID}
		if key.PrivateKey, err = secretFromEnv(getenv, rk.PrivateKeyEnv, ""); err != nil {
			return err
		}
		if key.PublicKey, err = secretFromEnv(getenv, rk.PublicKeyEnv, ""); err != nil {
			return err
		}
		t.RetiredKeys = append(t.RetiredKeys, key)
	}
	if cfg.Fingerprint.Salt, err = secretFromEnv(getenv, fc.Fingerprint.SaltEnv, EnvFingerprintSalt); err != nil {
		return err
	}

	if fc.Chain.KeyPrefix != "" {
		cfg.Chain.KeyPrefix = fc.Chain.KeyPrefix
	}
	setDuration(&cfg.Chain.AbsoluteLifetime, fc.Chain.AbsoluteLifetime)

	setDuration(&cfg.Store.OperationTimeout, fc.Store.OperationTimeout)
	setDuration(&cfg.Store.RetryBackoff, fc.Store.RetryBackoff)
	setInt(&cfg.Store.RetryAttempts, fc.Store.RetryAttempts)

	setBool(&cfg.Security.ProductionMode, fc.Security.ProductionMode)
	setBool(&cfg.Security.RevokeSubjectOnReuse, fc.Security.RevokeSubjectOnReuse)

	setBool(&cfg.Audit.Enabled, fc.Audit.Enabled)
	setInt(&cfg.Audit.BufferSize, fc.Audit.BufferSize)
	setBool(&cfg.Audit.DropIfFull, fc.Audit.DropIfFull)

	setBool(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	setBool(&cfg.Metrics.EnableLatencyHistograms, fc.Metrics.EnableLatencyHistograms)
	return nil
}

func secretFromEnv(getenv func(string) string, name, fallback string) ([]byte, error) {
	if name == "" {
		name = fallback
	}
	if name == "" {
		return nil, nil
	}
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return b, nil
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
