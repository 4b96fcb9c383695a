package goToken

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"go.uber.org/zap"
)

// IdentityChanged marks userID for forced refresh so the next Verify of any
// of its tokens re-issues with the authoritative user. Users without a live
// refresh record are not marked. It reports whether the user was marked.
func (e *Engine) IdentityChanged(ctx context.Context, userID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return false, ErrInvalidUserID
	}

	live, err := e.refreshTokens.AnyFor(ctx, userID)
	if err != nil {
		return false, err
	}
	if !live {
		return false, nil
	}
	if err := e.refreshList.Add(ctx, userID); err != nil {
		return false, err
	}

	e.metricInc(MetricIdentityChanged)
	e.emitAudit(ctx, auditEventIdentityChanged, true, userID, "", nil, nil)
	return true, nil
}

// IdentityRemoved marks userID for forced refresh and deletes every refresh
// record it owns, so no outstanding token can be refreshed again. Access
// tokens stay valid until their exp. It returns the number of records
// deleted.
func (e *Engine) IdentityRemoved(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidUserID
	}

	if err := e.refreshList.Add(ctx, userID); err != nil {
		return 0, err
	}
	n, err := e.refreshTokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return n, err
	}

	e.metricInc(MetricIdentityRemoved)
	e.emitAudit(ctx, auditEventIdentityRemoved, true, userID, "", nil, func() map[string]string {
		return map[string]string{"deleted": strconv.Itoa(n)}
	})
	e.logger.Debug("identity removed", zap.String("user_id", userID), zap.Int("deleted", n))
	return n, nil
}

// Block blacklists (userID, jti) until exp plus one second. A zero exp uses
// StoreConfig.BlacklistTTL. Blocked tokens are only rejected when
// VerifyConfig.Blacklist is enabled.
func (e *Engine) Block(ctx context.Context, userID, jti string, exp time.Time) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.blacklist.Block(ctx, userID, jti, exp); err != nil {
		return err
	}

	e.metricInc(MetricTokenBlocked)
	e.emitAudit(ctx, auditEventTokenBlocked, true, userID, jti, nil, nil)
	return nil
}

// BlockToken blacklists a token until its own exp. The token must carry a
// valid signature; expiry is not checked, but a token already past exp
// cannot be blocked and yields store.ErrExpired.
func (e *Engine) BlockToken(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	parsed, err := e.jwtManager.Parse(token, jwt.SkipExpiry())
	if err != nil {
		return err
	}
	userID, err := parsed.Payload.UserID(e.config.JWT.UserIDClaim)
	if err != nil {
		return err
	}
	return e.Block(ctx, userID, parsed.Payload.ID, parsed.Payload.ExpiresAt)
}

// Revoke deletes one refresh record immediately, skipping the grace
// period. It reports whether a record existed.
func (e *Engine) Revoke(ctx context.Context, userID, jti string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	ok, err := e.refreshTokens.Delete(ctx, userID, jti)
	if err != nil {
		return false, err
	}
	if ok {
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRevoked, true, userID, jti, nil, nil)
	}
	return ok, nil
}
