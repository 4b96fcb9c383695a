package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureRepresent
	IssueFailureUserID
	IssueFailureJTI
	IssueFailurePayload
	IssueFailureSign
	IssueFailureStore
)

// IssueResult carries either the issued token pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	UserID  string
	Token   string
	Secret  string
	Payload *jwt.Payload
}

type RefreshRecordCreator interface {
	Create(ctx context.Context, userID, jti string, expiresAt time.Time) (*store.RefreshRecord, error)
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Now              func() time.Time
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	UserIDClaim      string
	Issuer           string
	Audience         []string
	Subject          string
	ToRepresentation func(user any) (map[string]any, error)
	NewJTI           func(userID string, now time.Time) (string, error)
	Sign             func(*jwt.Payload) (string, error)
	RefreshTokens    RefreshRecordCreator
}

// RunIssue builds a fresh payload for user, signs it and stores the digest
// of a new refresh secret expiring RefreshTTL after iat. claims may carry
// "oat" to continue an existing refresh chain.
func RunIssue(ctx context.Context, user any, claims map[string]any, deps IssueDeps) IssueResult {
	repr, err := deps.ToRepresentation(user)
	if err != nil {
		return IssueResult{Failure: IssueFailureRepresent, Err: err}
	}
	if repr == nil {
		repr = map[string]any{}
	}

	userID, err := (&jwt.Payload{User: repr}).UserID(deps.UserIDClaim)
	if err != nil {
		return IssueResult{Failure: IssueFailureUserID, Err: err}
	}

	now := deps.Now()
	jti, err := deps.NewJTI(userID, now)
	if err != nil {
		return IssueResult{Failure: IssueFailureJTI, Err: err, UserID: userID}
	}

	payload, err := jwt.NewPayload(jwt.PayloadInput{
		ID:       jti,
		Now:      now,
		TTL:      deps.AccessTTL,
		User:     repr,
		Issuer:   deps.Issuer,
		Audience: deps.Audience,
		Subject:  deps.Subject,
		Claims:   claims,
	})
	if err != nil {
		return IssueResult{Failure: IssueFailurePayload, Err: err, UserID: userID}
	}

	token, err := deps.Sign(payload)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, UserID: userID, Payload: payload}
	}

	rec, err := deps.RefreshTokens.Create(ctx, userID, jti, payload.IssuedAt.Add(deps.RefreshTTL))
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err, UserID: userID, Payload: payload}
	}

	return IssueResult{
		Failure: IssueFailureNone,
		UserID:  userID,
		Token:   token,
		Secret:  rec.Secret,
		Payload: payload,
	}
}
