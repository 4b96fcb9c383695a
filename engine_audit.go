package goToken

import (
	"context"
	"errors"
)

const (
	auditEventTokenIssued     = "token_issued"
	auditEventTokenVerified   = "token_verified"
	auditEventTokenRejected   = "token_rejected"
	auditEventTokenRefreshed  = "token_refreshed"
	auditEventRefreshNotFound = "refresh_not_found"
	auditEventUserNotFound    = "user_not_found"
	auditEventTokenBlocked    = "token_blocked"
	auditEventIdentityChanged = "identity_changed"
	auditEventIdentityRemoved = "identity_removed"
	auditEventRefreshRevoked  = "refresh_revoked"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrMalformed       AuditErrorCode = "malformed"
	auditErrSignature       AuditErrorCode = "signature_invalid"
	auditErrAlgorithm       AuditErrorCode = "algorithm_mismatch"
	auditErrMissingClaim    AuditErrorCode = "missing_claim"
	auditErrInvalidClaim    AuditErrorCode = "invalid_claim"
	auditErrIssuedInFuture  AuditErrorCode = "issued_in_future"
	auditErrClaimMismatch   AuditErrorCode = "claim_mismatch"
	auditErrBlacklisted     AuditErrorCode = "blacklisted"
	auditErrRefreshNotFound AuditErrorCode = "refresh_not_found"
	auditErrUserNotFound    AuditErrorCode = "user_not_found"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrIssueFailed     AuditErrorCode = "issue_failed"
	auditErrInvalidArgument AuditErrorCode = "invalid_argument"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	jti string,
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
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		JTI:       jti,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
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
	case errors.Is(err, ErrTokenMalformed):
		return auditErrMalformed
	case errors.Is(err, ErrAlgorithmMismatch):
		return auditErrAlgorithm
	case errors.Is(err, ErrSignatureInvalid):
		return auditErrSignature
	case errors.Is(err, ErrMissingClaim):
		return auditErrMissingClaim
	case errors.Is(err, ErrIssuedInFuture):
		return auditErrIssuedInFuture
	case errors.Is(err, ErrInvalidIssuer),
		errors.Is(err, ErrInvalidAudience),
		errors.Is(err, ErrInvalidSubject):
		return auditErrClaimMismatch
	case errors.Is(err, ErrInvalidClaim):
		return auditErrInvalidClaim
	case errors.Is(err, ErrBlacklisted):
		return auditErrBlacklisted
	case errors.Is(err, ErrRefreshTokenNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrIssueFailed):
		return auditErrIssueFailed
	case errors.Is(err, ErrInvalidUserID):
		return auditErrInvalidArgument
	default:
		return auditErrInternal
	}
}
