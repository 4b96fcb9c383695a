package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotFound
	RefreshFailureStore
	RefreshFailureResolve
	RefreshFailureIssue
)

// RefreshResult carries either the re-issued pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	User    any
	Issued  IssueResult
	// Popped reports whether this call removed the user from the forced
	// refresh set.
	Popped bool
}

type RefreshRecordStore interface {
	FindBy(ctx context.Context, userID, jti, secret string) (*store.RefreshRecord, error)
	SoftDelete(ctx context.Context, rec *store.RefreshRecord) (bool, error)
}

type ForcedRefreshSet interface {
	Remove(ctx context.Context, userID string) (bool, error)
}

// RefreshRequest describes one re-issuance.
type RefreshRequest struct {
	Payload *jwt.Payload
	UserID  string
	Secret  string
	// Retire soft-deletes the redeemed refresh record.
	Retire bool
	// Forced resolves the user authoritatively and pops it from the forced
	// refresh set; otherwise the user is rebuilt from the stale claims.
	Forced bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RefreshTokens RefreshRecordStore
	RefreshList   ForcedRefreshSet
	Resolve       func(ctx context.Context, stale map[string]any) (any, error)
	Reconstruct   func(repr map[string]any) (any, error)
	Issue         func(ctx context.Context, user any, claims map[string]any) IssueResult
	Warn          func(msg string, err error)
}

// RunRefresh re-issues a token pair for an expired or stale token.
//
// A live refresh record matching the caller's secret is required. The
// forced-refresh pop is best-effort and happens before resolution, so a
// user whose identity vanished is still unmarked. The sequence as a whole
// is not atomic: concurrent callers may both re-issue.
func RunRefresh(ctx context.Context, req RefreshRequest, deps RefreshDeps) RefreshResult {
	if req.Secret == "" {
		return RefreshResult{Failure: RefreshFailureNotFound, UserID: req.UserID}
	}

	rec, err := deps.RefreshTokens.FindBy(ctx, req.UserID, req.Payload.ID, req.Secret)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: req.UserID}
	}
	if rec == nil {
		return RefreshResult{Failure: RefreshFailureNotFound, UserID: req.UserID}
	}

	if req.Retire {
		if _, err := deps.RefreshTokens.SoftDelete(ctx, rec); err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: req.UserID}
		}
	}

	var (
		user   any
		popped bool
	)
	if req.Forced {
		if deps.RefreshList != nil {
			popped, err = deps.RefreshList.Remove(ctx, req.UserID)
			if err != nil && deps.Warn != nil {
				deps.Warn("goToken: forced refresh pop failed", err)
			}
		}
		user, err = deps.Resolve(ctx, req.Payload.User)
	} else {
		user, err = deps.Reconstruct(req.Payload.User)
	}
	if err != nil {
		return RefreshResult{Failure: RefreshFailureResolve, Err: err, UserID: req.UserID, Popped: popped}
	}

	issued := deps.Issue(ctx, user, req.Payload.CarryOver())
	if issued.Failure != IssueFailureNone {
		return RefreshResult{
			Failure: RefreshFailureIssue,
			Err:     issued.Err,
			UserID:  req.UserID,
			User:    user,
			Issued:  issued,
			Popped:  popped,
		}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		UserID:  req.UserID,
		User:    user,
		Issued:  issued,
		Popped:  popped,
	}
}
