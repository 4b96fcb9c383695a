package goToken

import (
	"context"
	"errors"
	"fmt"
	"sync"

	internalflows "github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"go.uber.org/zap"
)

type refreshTrigger int

const (
	refreshOnExpiry refreshTrigger = iota
	refreshOnMark
	refreshOnRequest
)

func (t refreshTrigger) String() string {
	switch t {
	case refreshOnExpiry:
		return "expired"
	case refreshOnMark:
		return "forced"
	default:
		return "explicit"
	}
}

// Decoding is the result of a successful Verify. After a refresh it
// reports the new pair; Original still returns the payload that was
// presented.
//
// A Decoding re-issues at most once. It is safe for concurrent use.
type Decoding struct {
	engine *Engine

	mu         sync.Mutex
	original   *jwt.Payload
	header     map[string]any
	payload    *jwt.Payload
	token      string
	secret     string
	userID     string
	expired    bool
	refreshed  bool
	user       any
	userLoaded bool
}

func newDecoding(e *Engine, parsed *jwt.Parsed, userID, secret string, expired bool) *Decoding {
	return &Decoding{
		engine:   e,
		original: parsed.Payload,
		header:   parsed.Header,
		payload:  parsed.Payload,
		token:    parsed.Raw,
		secret:   secret,
		userID:   userID,
		expired:  expired,
	}
}

// Payload returns the current payload: the re-issued one after a refresh.
func (d *Decoding) Payload() *jwt.Payload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payload
}

// Original returns the payload of the token passed to Verify.
func (d *Decoding) Original() *jwt.Payload {
	return d.original
}

// Header returns a copy of the verified token's header.
func (d *Decoding) Header() map[string]any {
	out := make(map[string]any, len(d.header))
	for k, v := range d.header {
		out[k] = v
	}
	return out
}

func (d *Decoding) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

func (d *Decoding) Secret() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.secret
}

func (d *Decoding) JTI() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payload.ID
}

func (d *Decoding) UserID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userID
}

// Refreshed reports whether Token and Secret hold a newly issued pair.
func (d *Decoding) Refreshed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshed
}

// Expired reports whether the presented token was past its exp.
func (d *Decoding) Expired() bool {
	return d.expired
}

// User returns the host user for this decoding. After a refresh it is the
// user the new pair was issued for, otherwise it is rebuilt from the user
// claim. The result is memoized.
func (d *Decoding) User(_ context.Context) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userLoaded {
		return d.user, nil
	}
	user, err := d.engine.codec.FromRepresentation(d.payload.User)
	if err != nil {
		return nil, err
	}

	d.user = user
	d.userLoaded = true
	return user, nil
}

// Refresh re-issues the pair for a still-valid token, retiring its refresh
// record into the grace period. It is a no-op once the decoding has been
// refreshed.
func (d *Decoding) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refreshed {
		return nil
	}

	forced := d.engine.config.Refresh.AlwaysRefreshUser
	if !forced {
		marked, err := d.engine.forcedRefresh(ctx, d.userID)
		if err != nil {
			return err
		}
		forced = marked
	}
	return d.refreshLocked(ctx, refreshOnRequest, forced)
}

// VerifyRefreshToken checks that the current secret matches a live refresh
// record for the current user and jti.
func (d *Decoding) VerifyRefreshToken(ctx context.Context) error {
	d.mu.Lock()
	userID, jti, secret := d.userID, d.payload.ID, d.secret
	d.mu.Unlock()

	if secret == "" {
		return ErrRefreshTokenNotFound
	}
	rec, err := d.engine.refreshTokens.FindBy(ctx, userID, jti, secret)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRefreshTokenNotFound
	}
	return nil
}

func (d *Decoding) refresh(ctx context.Context, trigger refreshTrigger, forced bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshLocked(ctx, trigger, forced)
}

func (d *Decoding) refreshLocked(ctx context.Context, trigger refreshTrigger, forced bool) error {
	if d.refreshed {
		return nil
	}
	e := d.engine

	res := internalflows.RunRefresh(ctx, internalflows.RefreshRequest{
		Payload: d.payload,
		UserID:  d.userID,
		Secret:  d.secret,
		Retire:  trigger != refreshOnMark,
		Forced:  forced,
	}, e.refreshFlowDeps())
	if res.Failure != internalflows.RefreshFailureNone {
		return e.refreshFailed(ctx, trigger, d.userID, d.payload.ID, res)
	}

	previous := d.payload.ID
	d.payload = res.Issued.Payload
	d.token = res.Issued.Token
	d.secret = res.Issued.Secret
	d.userID = res.Issued.UserID
	d.user = res.User
	d.userLoaded = true
	d.refreshed = true

	switch trigger {
	case refreshOnExpiry:
		e.metricInc(MetricRefreshExpired)
	case refreshOnMark:
		e.metricInc(MetricRefreshForced)
	default:
		e.metricInc(MetricRefreshExplicit)
	}
	e.emitAudit(ctx, auditEventTokenRefreshed, true, d.userID, d.payload.ID, nil, func() map[string]string {
		return map[string]string{
			"trigger":      trigger.String(),
			"previous_jti": previous,
		}
	})
	e.logger.Debug("token pair re-issued",
		zap.String("user_id", d.userID),
		zap.String("previous_jti", previous),
		zap.String("jti", d.payload.ID),
		zap.Stringer("trigger", trigger),
		zap.Bool("user_resolved", forced),
		zap.Bool("unmarked", res.Popped),
	)
	return nil
}

func (e *Engine) refreshFailed(ctx context.Context, trigger refreshTrigger, userID, jti string, res internalflows.RefreshResult) error {
	var err error
	switch res.Failure {
	case internalflows.RefreshFailureNotFound:
		err = ErrRefreshTokenNotFound
		e.metricInc(MetricRefreshNotFound)
		e.emitAudit(ctx, auditEventRefreshNotFound, false, userID, jti, err, nil)
		return err
	case internalflows.RefreshFailureResolve:
		err = res.Err
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricUserNotFound)
			e.emitAudit(ctx, auditEventUserNotFound, false, userID, jti, err, nil)
			return err
		}
	case internalflows.RefreshFailureIssue:
		err = issueError(res.Issued)
	default:
		err = res.Err
	}
	if err == nil {
		err = fmt.Errorf("refresh %s: unknown failure", trigger)
	}

	e.emitAudit(ctx, auditEventTokenRefreshed, false, userID, jti, err, func() map[string]string {
		return map[string]string{"trigger": trigger.String()}
	})
	return err
}
