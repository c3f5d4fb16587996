package leadAuth

import (
	"errors"
	"fmt"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the set of warnings produced by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns the warnings at or above floor.
func (r LintResult) BySeverity(floor LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= floor {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above floor into one error, or returns nil.
func (r LintResult) AsError(floor LintSeverity) error {
	var errs []error
	for _, w := range r.BySeverity(floor) {
		errs = append(errs, fmt.Errorf("%s [%s]: %s", w.Code, w.Severity, w.Message))
	}
	return errors.Join(errs...)
}

// Lint reports settings that pass Validate but weaken the token lifecycle.
// Build logs the result at warn level; it never fails on lint alone.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Token.Leeway > 30*time.Second {
		add("leeway_large", LintWarn, "token leeway above 30s extends every token past its expiry")
	}
	if c.Token.AccessTTL > 10*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens live longer than 10m; revocation only covers explicit logouts")
	}
	if c.Token.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 30 days")
	}
	if c.Token.SigningMethod == "hs256" {
		add("hs256_shared_secret", LintInfo, "hs256 shares one secret between signers and verifiers; ed25519 is preferred")
	}
	if c.Chain.AbsoluteLifetime == 0 {
		add("absolute_lifetime_unbounded", LintWarn, "chains never expire while they keep rotating")
	} else if c.Chain.AbsoluteLifetime < c.Token.RefreshTTL {
		add("absolute_shorter_than_refresh", LintInfo, "Chain AbsoluteLifetime caps RefreshTTL; refresh tokens will be shorter than configured")
	}
	if !c.Security.RevokeSubjectOnReuse {
		sev := LintWarn
		if c.Security.ProductionMode {
			sev = LintHigh
		}
		add("reuse_scope_chain_only", sev, "reuse detection only revokes the affected chain, not the subject's other devices")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "reuse detection and revocations are not audited")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintWarn, "a slow audit sink will block token operations")
	}
	if c.Store.RetryAttempts == 1 {
		add("store_retry_disabled", LintInfo, "transient store errors fail requests immediately")
	}
	if c.Security.ProductionMode && c.Token.Issuer == "" {
		add("issuer_unset", LintHigh, "tokens carry no issuer in production mode")
	}

	return ws
}
