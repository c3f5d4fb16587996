package leadAuth

import (
	"context"
	"errors"
)

const (
	auditEventIssueSuccess         = "issue_success"
	auditEventIssueFailure         = "issue_failure"
	auditEventChainReplaced        = "chain_replaced"
	auditEventRotateSuccess        = "rotate_success"
	auditEventRotateFailure        = "rotate_failure"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventChainNotFound        = "chain_not_found"
	auditEventBindingMismatch      = "binding_mismatch"
	auditEventAccessRevoked        = "access_revoked"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrExpired             AuditErrorCode = "expired"
	auditErrBindingMismatch     AuditErrorCode = "binding_mismatch"
	auditErrRevoked             AuditErrorCode = "revoked"
	auditErrChainNotFound       AuditErrorCode = "chain_not_found"
	auditErrRefreshReuse        AuditErrorCode = "refresh_reuse"
	auditErrUnknownRole         AuditErrorCode = "unknown_role"
	auditErrUnknownCapability   AuditErrorCode = "unknown_capability"
	auditErrInvalidPrincipal    AuditErrorCode = "invalid_principal"
	auditErrFingerprintRequired AuditErrorCode = "fingerprint_required"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrConfiguration       AuditErrorCode = "configuration"
	auditErrInternal            AuditErrorCode = "internal_error"
)

type auditRecord struct {
	subjectID      string
	organizationID string
	chainID        string
	tokenID        string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	rec auditRecord,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:      e.now().UTC(),
		EventType:      eventType,
		SubjectID:      rec.subjectID,
		OrganizationID: rec.organizationID,
		ChainID:        rec.chainID,
		TokenID:        rec.tokenID,
		IP:             clientIPFromContext(ctx),
		Success:        success,
		Metadata:       metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrMalformed):
		return auditErrInvalidToken
	case errors.Is(err, ErrBindingMismatch):
		return auditErrBindingMismatch
	case errors.Is(err, ErrRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrChainNotFound):
		return auditErrChainNotFound
	case errors.Is(err, ErrReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrUnknownRole):
		return auditErrUnknownRole
	case errors.Is(err, ErrUnknownCapability):
		return auditErrUnknownCapability
	case errors.Is(err, ErrInvalidPrincipal):
		return auditErrInvalidPrincipal
	case errors.Is(err, ErrFingerprintRequired):
		return auditErrFingerprintRequired
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrConfiguration):
		return auditErrConfiguration
	default:
		return auditErrInternal
	}
}
