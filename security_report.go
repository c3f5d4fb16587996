package leadAuth

import "time"

// SecurityReport summarizes the security posture of a built engine.
type SecurityReport struct {
	ProductionMode      bool
	SigningAlgorithm    string
	ActiveKeyID         string
	RetiredKeys         int
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Leeway              time.Duration
	AbsoluteLifetime    time.Duration
	ReuseRevokesSubject bool
	CapabilityRegistry  bool
	Capabilities        int
	AuditEnabled        bool
	MetricsEnabled      bool
	HighLintFindings    []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		ProductionMode:      e.config.Security.ProductionMode,
		SigningAlgorithm:    e.config.Token.SigningMethod,
		ActiveKeyID:         e.config.Token.KeyID,
		RetiredKeys:         len(e.config.Token.RetiredKeys),
		AccessTTL:           e.config.Token.AccessTTL,
		RefreshTTL:          e.config.Token.RefreshTTL,
		Leeway:              e.config.Token.Leeway,
		AbsoluteLifetime:    e.config.Chain.AbsoluteLifetime,
		ReuseRevokesSubject: e.config.Security.RevokeSubjectOnReuse,
		AuditEnabled:        e.config.Audit.Enabled,
		MetricsEnabled:      e.config.Metrics.Enabled,
		HighLintFindings:    e.config.Lint().BySeverity(LintHigh).Codes(),
	}
	if e.registry != nil {
		r.CapabilityRegistry = true
		r.Capabilities = e.registry.Count()
	}
	return r
}
