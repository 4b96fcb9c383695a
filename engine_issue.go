package goToken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goToken/internal"
	internalflows "github.com/MrEthical07/goToken/internal/flows"
	"go.uber.org/zap"
)

// Issue signs a new access token for user and stores the digest of a fresh
// refresh secret. claims are embedded as-is except for reserved names; an
// "oat" claim continues an existing chain instead of starting a new one.
func (e *Engine) Issue(ctx context.Context, user any, claims map[string]any) (*Issued, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := internalflows.RunIssue(ctx, user, claims, e.issueFlowDeps())
	if res.Failure != internalflows.IssueFailureNone {
		err := issueError(res)
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssued, false, res.UserID, "", err, nil)
		return nil, err
	}

	issued := issuedFromResult(res)
	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventTokenIssued, true, issued.UserID, issued.JTI, nil, nil)
	return issued, nil
}

func (e *Engine) issueFlowDeps() internalflows.IssueDeps {
	return internalflows.IssueDeps{
		Now:              e.now,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.Refresh.TTL,
		UserIDClaim:      e.config.JWT.UserIDClaim,
		Issuer:           e.config.JWT.Issuer,
		Audience:         e.config.JWT.Audience,
		Subject:          e.config.JWT.Subject,
		ToRepresentation: e.codec.ToRepresentation,
		NewJTI: func(userID string, now time.Time) (string, error) {
			return internal.NewJTI(userID, e.config.JWT.JTIHexLength, now)
		},
		Sign:          e.jwtManager.Sign,
		RefreshTokens: e.refreshTokens,
	}
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	issueDeps := e.issueFlowDeps()
	return internalflows.RefreshDeps{
		RefreshTokens: e.refreshTokens,
		RefreshList:   e.refreshList,
		Resolve:       e.resolveUser,
		Reconstruct:   e.codec.FromRepresentation,
		Issue: func(ctx context.Context, user any, claims map[string]any) internalflows.IssueResult {
			return internalflows.RunIssue(ctx, user, claims, issueDeps)
		},
		Warn: func(msg string, err error) {
			e.logger.Warn(msg, zap.Error(err))
		},
	}
}

// resolveUser asks the host for the authoritative user. A nil user without
// an error counts as not found.
func (e *Engine) resolveUser(ctx context.Context, stale map[string]any) (any, error) {
	user, err := e.codec.ResolveCurrent(ctx, stale)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func issueError(res internalflows.IssueResult) error {
	if res.Err == nil {
		return ErrIssueFailed
	}
	return fmt.Errorf("%w: %w", ErrIssueFailed, res.Err)
}

func issuedFromResult(res internalflows.IssueResult) *Issued {
	return &Issued{
		Token:     res.Token,
		Secret:    res.Secret,
		UserID:    res.UserID,
		JTI:       res.Payload.ID,
		ExpiresAt: res.Payload.ExpiresAt,
		Payload:   res.Payload,
	}
}
