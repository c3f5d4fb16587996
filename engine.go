package leadAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/leadAuth/internal/audit"
	"github.com/MrEthical07/leadAuth/internal/flows"
	"github.com/MrEthical07/leadAuth/jwt"
	"github.com/MrEthical07/leadAuth/permission"
	"github.com/MrEthical07/leadAuth/store"
)

// Engine issues, verifies, rotates and revokes device-bound tokens and
// answers role and organization questions.
//
// Engine instances are built once through Builder.Build and are safe for
// concurrent use.
type Engine struct {
	config      Config
	registry    *permission.Registry
	roleManager *permission.RoleManager
	store       store.Store
	flows       flows.Service
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	clock       func() time.Time
}

// Close flushes and stops the audit dispatcher. The store client is owned
// by the caller and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events that never reached the
// sink. The same drops feed MetricAuditDropped when metrics are enabled.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Issue mints an access/refresh pair for a principal the caller has already
// authenticated, bound to the device identified by fingerprint. A previous
// chain for the same subject and device is replaced.
func (e *Engine) Issue(ctx context.Context, p Principal, fingerprint string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Issue(ctx, flows.IssueInput{
		SubjectID:      p.SubjectID,
		OrganizationID: p.OrganizationID,
		Role:           string(p.Role),
		Permissions:    p.Permissions,
		Fingerprint:    fingerprint,
	})
	rec := auditRecord{subjectID: p.SubjectID, organizationID: p.OrganizationID, chainID: res.ChainID}

	if res.Failure != flows.IssueFailureNone {
		err := issueError(res)
		e.metricInc(MetricIssueFailure)
		if errors.Is(err, ErrServiceUnavailable) {
			e.metricInc(MetricStoreUnavailable)
		}
		e.emitAudit(ctx, auditEventIssueFailure, false, rec, err, nil)
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	rec.tokenID = res.TokenID
	if res.Replaced != nil {
		e.metricInc(MetricChainReplaced)
		e.emitAudit(ctx, auditEventChainReplaced, true, rec, nil, func() map[string]string {
			return map[string]string{
				"replaced_chain_id": res.Replaced.ChainID,
			}
		})
	}
	e.emitAudit(ctx, auditEventIssueSuccess, true, rec, nil, nil)

	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessTTLSeconds: int64(e.config.Token.AccessTTL / time.Second),
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		TokenID:          res.TokenID,
		ChainID:          res.ChainID,
		Principal: Principal{
			SubjectID:      res.SubjectID,
			OrganizationID: res.OrganizationID,
			Role:           Role(res.Role),
			Permissions:    res.Permissions,
			TokenID:        res.TokenID,
			ChainID:        res.ChainID,
			IssuedAt:       res.AccessExpiresAt.Add(-e.config.Token.AccessTTL),
			ExpiresAt:      res.AccessExpiresAt,
		},
	}, nil
}

// Verify checks an access token's signature, expiry, device binding and
// revocation status and returns its principal. It never writes.
func (e *Engine) Verify(ctx context.Context, accessToken, fingerprint string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	res := e.flows.Verify(ctx, accessToken, fingerprint)

	if !start.IsZero() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if res.Failure != flows.VerifyFailureNone {
		err := verifyError(res)
		e.metricInc(MetricVerifyFailure)
		switch res.Failure {
		case flows.VerifyFailureBinding:
			e.metricInc(MetricBindingMismatch)
			e.emitAudit(ctx, auditEventBindingMismatch, false, claimsRecord(res.Claims), err, func() map[string]string {
				return map[string]string{"operation": "verify"}
			})
		case flows.VerifyFailureRevoked:
			e.metricInc(MetricRevokedRejected)
		case flows.VerifyFailureStore:
			e.metricInc(MetricStoreUnavailable)
		}
		return nil, err
	}

	e.metricInc(MetricVerifySuccess)
	return principalFromClaims(res.Claims), nil
}

// Rotate exchanges a refresh token for a new pair. Each refresh token is
// accepted once: presenting a spent one revokes its chain and returns
// ErrReuseDetected, after which the chain is gone and further attempts
// return ErrChainNotFound.
func (e *Engine) Rotate(ctx context.Context, refreshToken, fingerprint string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Rotate(ctx, refreshToken, fingerprint)
	rec := auditRecord{
		subjectID:      res.SubjectID,
		organizationID: res.OrganizationID,
		chainID:        res.ChainID,
		tokenID:        res.TokenID,
	}

	if res.Failure != flows.RotateFailureNone {
		err := rotateError(res)
		e.metricInc(MetricRotateFailure)

		switch res.Failure {
		case flows.RotateFailureReuse:
			e.metricInc(MetricRefreshReuseDetected)
			e.logger.Warn("leadauth: refresh token reuse detected",
				"subject_id", res.SubjectID,
				"chain_id", res.ChainID,
				"revoked_chains", res.RevokedChains,
			)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec, err, func() map[string]string {
				return map[string]string{
					"revoked_chains": strconv.Itoa(res.RevokedChains),
				}
			})
		case flows.RotateFailureChainNotFound:
			e.metricInc(MetricChainNotFound)
			if res.SuccessorRevoked {
				e.metricInc(MetricSuccessorRevoked)
			}
			e.emitAudit(ctx, auditEventChainNotFound, false, rec, err, func() map[string]string {
				return map[string]string{
					"successor_revoked": strconv.FormatBool(res.SuccessorRevoked),
				}
			})
		case flows.RotateFailureBinding:
			e.metricInc(MetricBindingMismatch)
			e.emitAudit(ctx, auditEventBindingMismatch, false, rec, err, func() map[string]string {
				return map[string]string{"operation": "rotate"}
			})
		default:
			if res.Failure == flows.RotateFailureStore {
				e.metricInc(MetricStoreUnavailable)
			}
			e.emitAudit(ctx, auditEventRotateFailure, false, rec, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, auditEventRotateSuccess, true, rec, nil, func() map[string]string {
		return map[string]string{
			"generation": strconv.FormatUint(uint64(res.Generation), 10),
		}
	})

	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessTTLSeconds: int64(e.config.Token.AccessTTL / time.Second),
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		TokenID:          res.TokenID,
		ChainID:          res.ChainID,
		Principal: Principal{
			SubjectID:      res.SubjectID,
			OrganizationID: res.OrganizationID,
			Role:           Role(res.Role),
			Permissions:    res.Permissions,
			TokenID:        res.TokenID,
			ChainID:        res.ChainID,
			IssuedAt:       res.AccessExpiresAt.Add(-e.config.Token.AccessTTL),
			ExpiresAt:      res.AccessExpiresAt,
		},
	}, nil
}

// Logout verifies accessToken, deletes the refresh chain it was minted from
// and revokes the token itself.
func (e *Engine) Logout(ctx context.Context, accessToken, fingerprint string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, accessToken, fingerprint)
	if res.Verify.Failure != flows.VerifyFailureNone {
		return verifyError(res.Verify)
	}
	rec := claimsRecord(res.Claims())
	if res.Err != nil {
		e.metricInc(MetricStoreUnavailable)
		err := unavailable(res.Err)
		e.emitAudit(ctx, auditEventLogout, false, rec, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, rec, nil, nil)
	return nil
}

// LogoutAll deletes every refresh chain of subjectID and revokes the last
// access token of each. It returns the number of chains removed.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if subjectID == "" {
		return 0, ErrInvalidPrincipal
	}

	removed, err := e.flows.LogoutAll(ctx, subjectID)
	rec := auditRecord{subjectID: subjectID}
	meta := func() map[string]string {
		return map[string]string{"chains": strconv.Itoa(removed)}
	}
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		err = unavailable(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, rec, err, meta)
		return removed, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, rec, nil, meta)
	return removed, nil
}

// RevokeAccessToken revokes one access token until its expiry. The token
// must carry a valid signature and must not be expired; its device binding
// is not checked. An empty reason records "revoked".
func (e *Engine) RevokeAccessToken(ctx context.Context, accessToken, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.RevokeAccessToken(ctx, accessToken, reason)
	if res.Verify.Failure != flows.VerifyFailureNone {
		return verifyError(res.Verify)
	}
	rec := claimsRecord(res.Claims())
	if res.Err != nil {
		e.metricInc(MetricStoreUnavailable)
		err := unavailable(res.Err)
		e.emitAudit(ctx, auditEventAccessRevoked, false, rec, err, nil)
		return err
	}

	e.metricInc(MetricAccessRevoked)
	e.emitAudit(ctx, auditEventAccessRevoked, true, rec, nil, func() map[string]string {
		if reason == "" {
			reason = store.ReasonManual
		}
		return map[string]string{"reason": reason}
	})
	return nil
}

// HasPermission reports whether actor ranks at or above required. Unknown
// roles never pass.
func (e *Engine) HasPermission(actor, required Role) bool {
	return permission.HasPermission(actor, required)
}

// CheckPermission is HasPermission with a reason: ErrUnknownRole or
// ErrPermissionDenied.
func (e *Engine) CheckPermission(actor, required Role) error {
	return permission.CheckPermission(actor, required)
}

// CanAccessOrganization reports whether a principal of role in
// principalOrg may act on targetOrg.
func (e *Engine) CanAccessOrganization(role Role, principalOrg, targetOrg string) bool {
	return permission.CanAccessOrganization(role, principalOrg, targetOrg)
}

// RoleCapabilities returns the capabilities granted to role on Issue.
func (e *Engine) RoleCapabilities(role Role) []string {
	if e == nil || e.roleManager == nil {
		return nil
	}
	return e.roleManager.Capabilities(role)
}

func principalFromClaims(c *jwt.AccessClaims) *Principal {
	p := &Principal{
		SubjectID:      c.Subject,
		OrganizationID: c.OrganizationID,
		Role:           Role(c.Role),
		Permissions:    c.Permissions,
		TokenID:        c.ID,
		ChainID:        c.ChainID,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

func claimsRecord(c *jwt.AccessClaims) auditRecord {
	if c == nil {
		return auditRecord{}
	}
	return auditRecord{
		subjectID:      c.Subject,
		organizationID: c.OrganizationID,
		chainID:        c.ChainID,
		tokenID:        c.ID,
	}
}

func unavailable(err error) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func issueError(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureFingerprint:
		return ErrFingerprintRequired
	case flows.IssueFailurePrincipal:
		return fmt.Errorf("%w: %v", ErrInvalidPrincipal, res.Err)
	case flows.IssueFailureUnknownRole:
		return ErrUnknownRole
	case flows.IssueFailureCapability:
		if errors.Is(res.Err, ErrUnknownCapability) {
			return res.Err
		}
		return fmt.Errorf("%w: %v", ErrUnknownCapability, res.Err)
	case flows.IssueFailureSign:
		return fmt.Errorf("%w: %v", ErrConfiguration, res.Err)
	case flows.IssueFailureStore:
		return unavailable(res.Err)
	default:
		return fmt.Errorf("issue: %w", res.Err)
	}
}

func verifyError(res flows.VerifyResult) error {
	switch res.Failure {
	case flows.VerifyFailureDecode:
		return decodeError(res.Err)
	case flows.VerifyFailureBinding:
		return ErrBindingMismatch
	case flows.VerifyFailureRevoked:
		return ErrRevoked
	case flows.VerifyFailureStore:
		return unavailable(res.Err)
	default:
		return ErrMalformed
	}
}

func rotateError(res flows.RotateResult) error {
	switch res.Failure {
	case flows.RotateFailureDecode:
		return decodeError(res.Err)
	case flows.RotateFailureBinding:
		return ErrBindingMismatch
	case flows.RotateFailureChainNotFound:
		return ErrChainNotFound
	case flows.RotateFailureReuse:
		return ErrReuseDetected
	case flows.RotateFailureSign:
		return fmt.Errorf("%w: %v", ErrConfiguration, res.Err)
	case flows.RotateFailureStore:
		return unavailable(res.Err)
	default:
		return fmt.Errorf("rotate: %w", res.Err)
	}
}

// decodeError keeps codec errors as they are; they already wrap the
// exported token sentinels.
func decodeError(err error) error {
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrExpired) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
