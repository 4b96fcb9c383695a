package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blockedValue = "true"

// Blacklist holds revocation markers for individual access tokens. A marker
// lives exactly as long as the token it revokes, plus one second.
type Blacklist struct {
	store      *Store
	defaultTTL time.Duration
}

// NewBlacklist creates a [Blacklist] under prefix. defaultTTL is the lifetime
// used when Block is called without an explicit token expiry; it should equal
// the access-token lifetime.
func NewBlacklist(client redis.UniversalClient, prefix string, defaultTTL time.Duration, scanCount int64, now func() time.Time) *Blacklist {
	return &Blacklist{
		store:      NewStore(client, prefix, scanCount, now),
		defaultTTL: defaultTTL,
	}
}

// Block revokes (userID, jti) until exp. A zero exp means the default
// access-token lifetime from now.
func (b *Blacklist) Block(ctx context.Context, userID, jti string, exp time.Time) error {
	if exp.IsZero() {
		exp = b.store.Now().Add(b.defaultTTL)
	}
	if !exp.After(b.store.Now()) {
		return ErrExpired
	}
	return b.store.UpsertUntil(ctx, userID, jti, blockedValue, exp.Add(time.Second))
}

// Blocked reports whether (userID, jti) is revoked.
//
//	Performance: 1 Redis EXISTS.
func (b *Blacklist) Blocked(ctx context.Context, userID, jti string) (bool, error) {
	return b.store.Exists(ctx, userID, jti)
}

// Unblock removes a revocation marker and reports whether one existed.
func (b *Blacklist) Unblock(ctx context.Context, userID, jti string) (bool, error) {
	return b.store.Delete(ctx, userID, jti)
}

// Find returns one marker for the given user id and/or jti, or nil.
func (b *Blacklist) Find(ctx context.Context, userID, jti string) (*Record, error) {
	return b.store.Find(ctx, userID, jti)
}

// FindAll returns every marker for the given user id and/or jti.
func (b *Blacklist) FindAll(ctx context.Context, userID, jti string) ([]*Record, error) {
	return b.store.FindAll(ctx, userID, jti)
}

// RemainingTTL returns how long (userID, jti) stays revoked, or [TTLMissing].
func (b *Blacklist) RemainingTTL(ctx context.Context, userID, jti string) (time.Duration, error) {
	return b.store.RemainingTTL(ctx, userID, jti)
}

// Count returns the number of live markers.
func (b *Blacklist) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

// Store exposes the underlying TTL store.
func (b *Blacklist) Store() *Store {
	return b.store
}
