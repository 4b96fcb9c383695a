package goToken

import (
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// Token rejection errors. Each wraps the matching golang-jwt sentinel as
// well, so errors.Is works against either family.
var (
	ErrTokenMalformed    = jwt.ErrTokenMalformed
	ErrSignatureInvalid  = jwt.ErrSignatureInvalid
	ErrAlgorithmMismatch = jwt.ErrAlgorithmMismatch
	ErrMissingClaim      = jwt.ErrMissingClaim
	ErrInvalidClaim      = jwt.ErrInvalidClaim
	ErrIssuedInFuture    = jwt.ErrIssuedInFuture
	ErrInvalidIssuer     = jwt.ErrInvalidIssuer
	ErrInvalidAudience   = jwt.ErrInvalidAudience
	ErrInvalidSubject    = jwt.ErrInvalidSubject
)

var (
	// ErrBlacklisted is returned when the token's jti has been blocked.
	ErrBlacklisted = errors.New("token blacklisted")
	// ErrRefreshTokenNotFound is returned when no live refresh record
	// matches the presented user, jti and secret.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrUserNotFound is returned when a forced refresh cannot resolve the
	// current user.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable wraps transport failures of the TTL store.
	ErrStoreUnavailable = store.ErrRedisUnavailable
	// ErrIssueFailed is returned when a token pair cannot be built.
	ErrIssueFailed = errors.New("token issuance failed")
	// ErrEngineNotReady is returned by methods called on a nil or
	// incompletely built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrIdentityCodecRequired is returned by Build without an IdentityCodec.
	ErrIdentityCodecRequired = errors.New("identity codec required")
	// ErrInvalidUserID is returned by host events called with an empty id.
	ErrInvalidUserID = errors.New("invalid user id")
)
