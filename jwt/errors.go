package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Each sentinel also wraps the matching golang-jwt error, so callers may
// classify with either family through errors.Is.
var (
	// ErrTokenMalformed is returned when the compact serialization cannot be decoded.
	ErrTokenMalformed = fmt.Errorf("token malformed: %w", jwt.ErrTokenMalformed)
	// ErrSignatureInvalid is returned when the signature does not verify.
	ErrSignatureInvalid = fmt.Errorf("token signature invalid: %w", jwt.ErrTokenSignatureInvalid)
	// ErrAlgorithmMismatch is returned when the token header declares another algorithm.
	ErrAlgorithmMismatch = fmt.Errorf("token algorithm mismatch: %w", jwt.ErrTokenSignatureInvalid)
	// ErrMissingClaim is returned when a required claim is absent or empty.
	ErrMissingClaim = fmt.Errorf("required claim missing: %w", jwt.ErrTokenRequiredClaimMissing)
	// ErrInvalidClaim is returned when a claim has an unusable type or value.
	ErrInvalidClaim = fmt.Errorf("claim invalid: %w", jwt.ErrTokenInvalidClaims)
	// ErrIssuedInFuture is returned when iat lies after now plus leeway.
	ErrIssuedInFuture = fmt.Errorf("token issued in the future: %w", jwt.ErrTokenUsedBeforeIssued)
	// ErrInvalidIssuer is returned when iss does not satisfy the configured matcher.
	ErrInvalidIssuer = fmt.Errorf("token issuer rejected: %w", jwt.ErrTokenInvalidIssuer)
	// ErrInvalidAudience is returned when aud does not satisfy the configured matcher.
	ErrInvalidAudience = fmt.Errorf("token audience rejected: %w", jwt.ErrTokenInvalidAudience)
	// ErrInvalidSubject is returned when sub does not satisfy the configured matcher.
	ErrInvalidSubject = fmt.Errorf("token subject rejected: %w", jwt.ErrTokenInvalidSubject)
	// ErrTokenExpired is returned when now is past exp plus leeway and every other check passed.
	ErrTokenExpired = fmt.Errorf("token expired: %w", jwt.ErrTokenExpired)
)

var (
	errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	errMissingSecret        = errors.New("signing secret is required")
	errInvalidLeeway        = errors.New("invalid leeway configuration")
)
