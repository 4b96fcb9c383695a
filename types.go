package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

// IdentityCodec converts between host user values and the "user" claim.
//
// ToRepresentation must return a JSON-compatible map containing the field
// named by JWTConfig.UserIDClaim. FromRepresentation rebuilds a user from
// claims without I/O. ResolveCurrent loads the authoritative user for a
// stale representation and returns ErrUserNotFound (or a nil user) when the
// identity no longer exists.
type IdentityCodec interface {
	ToRepresentation(user any) (map[string]any, error)
	FromRepresentation(repr map[string]any) (any, error)
	ResolveCurrent(ctx context.Context, stale map[string]any) (any, error)
}

// CodecFuncs adapts plain functions to IdentityCodec. A nil
// FromRepresentation returns the map itself; a nil ResolveCurrent falls
// back to FromRepresentation.
type CodecFuncs struct {
	To      func(user any) (map[string]any, error)
	From    func(repr map[string]any) (any, error)
	Resolve func(ctx context.Context, stale map[string]any) (any, error)
}

func (c CodecFuncs) ToRepresentation(user any) (map[string]any, error) {
	if c.To == nil {
		if repr, ok := user.(map[string]any); ok {
			return repr, nil
		}
		return nil, ErrInvalidClaim
	}
	return c.To(user)
}

func (c CodecFuncs) FromRepresentation(repr map[string]any) (any, error) {
	if c.From == nil {
		return repr, nil
	}
	return c.From(repr)
}

func (c CodecFuncs) ResolveCurrent(ctx context.Context, stale map[string]any) (any, error) {
	if c.Resolve == nil {
		return c.FromRepresentation(stale)
	}
	return c.Resolve(ctx, stale)
}

// Issued is a freshly issued token pair. Secret is the only copy of the
// refresh secret; the store keeps its digest.
type Issued struct {
	Token     string
	Secret    string
	UserID    string
	JTI       string
	ExpiresAt time.Time
	Payload   *jwt.Payload
}
