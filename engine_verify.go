package goToken

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

// Verify checks token and returns its decoding, re-issuing the pair when
// needed.
//
// A token failing any signature or claim check is rejected with a distinct
// error. An expired token that passed every other check is re-issued when
// secret matches a live refresh record; the redeemed record is soft-deleted
// and stays usable for the grace period. A valid token whose user is marked
// for forced refresh, or any valid token when AlwaysRefreshUser is set, is
// re-issued with the authoritative user and its record is kept. Otherwise
// the token is returned as-is, and secret is not consulted.
//
// Inspect Decoding.Refreshed and deliver Decoding.Token and Decoding.Secret
// to the client when it reports true.
func (e *Engine) Verify(ctx context.Context, token, secret string) (*Decoding, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeVerify(start)

	expired := false
	parsed, err := e.jwtManager.Parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		expired = true
		parsed, err = e.jwtManager.Parse(token, jwt.SkipExpiry())
	}
	if err != nil {
		e.reject(ctx, "", "", err)
		return nil, err
	}

	userID, err := parsed.Payload.UserID(e.config.JWT.UserIDClaim)
	if err != nil {
		e.reject(ctx, "", parsed.Payload.ID, err)
		return nil, err
	}

	if e.config.Verify.Blacklist {
		blocked, err := e.blacklist.Blocked(ctx, userID, parsed.Payload.ID)
		if err != nil {
			return nil, err
		}
		if blocked {
			e.metricInc(MetricBlacklistHit)
			e.reject(ctx, userID, parsed.Payload.ID, ErrBlacklisted)
			return nil, ErrBlacklisted
		}
	}

	marked, err := e.forcedRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	resolve := marked || e.config.Refresh.AlwaysRefreshUser
	d := newDecoding(e, parsed, userID, secret, expired)
	switch {
	case expired:
		err = d.refresh(ctx, refreshOnExpiry, resolve)
	case resolve:
		err = d.refresh(ctx, refreshOnMark, true)
	}
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventTokenVerified, true, userID, parsed.Payload.ID, nil, nil)
	return d, nil
}

func (e *Engine) reject(ctx context.Context, userID, jti string, err error) {
	e.metricInc(MetricVerifyRejected)
	e.emitAudit(ctx, auditEventTokenRejected, false, userID, jti, err, nil)
}
