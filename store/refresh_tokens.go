package store

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/internal"
	"github.com/redis/go-redis/v9"
)

// RefreshRecord is one stored refresh token. Secret is only populated on
// the record returned by Create or by a FindBy that matched it.
type RefreshRecord struct {
	UserID    string
	JTI       string
	Digest    string
	Secret    string
	ExpiresAt time.Time
}

// RefreshTokens stores one digest per issued (user id, jti) pair. The clear
// secret is returned to the caller once and never persisted.
type RefreshTokens struct {
	store *Store
	grace time.Duration
}

// NewRefreshTokens creates a [RefreshTokens] store under prefix. grace is
// the replay window kept open by SoftDelete; zero disables it.
func NewRefreshTokens(client redis.UniversalClient, prefix string, grace time.Duration, scanCount int64, now func() time.Time) *RefreshTokens {
	return &RefreshTokens{
		store: NewStore(client, prefix, scanCount, now),
		grace: grace,
	}
}

// GracePeriod returns the configured replay window.
func (r *RefreshTokens) GracePeriod() time.Duration {
	return r.grace
}

// Create generates a new secret for (userID, jti), stores its digest until
// expiresAt and returns the record carrying the clear secret. An existing
// record for the same key is replaced.
func (r *RefreshTokens) Create(ctx context.Context, userID, jti string, expiresAt time.Time) (*RefreshRecord, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	digest := internal.HashRefreshSecret(secret)
	if err := r.store.UpsertUntil(ctx, userID, jti, digest, expiresAt); err != nil {
		return nil, err
	}
	return &RefreshRecord{
		UserID:    userID,
		JTI:       jti,
		Digest:    digest,
		Secret:    secret,
		ExpiresAt: expiresAt,
	}, nil
}

// FindBy returns the live record for (userID, jti). When secret is not empty
// the record is returned only if secret hashes to the stored digest; a
// mismatch is reported as nil, the same as an absent record.
//
//	Performance: 1 pipelined GET + PTTL.
func (r *RefreshTokens) FindBy(ctx context.Context, userID, jti, secret string) (*RefreshRecord, error) {
	rec, err := r.store.Get(ctx, userID, jti)
	if err != nil || rec == nil {
		return nil, err
	}
	out := toRefreshRecord(rec)
	if secret != "" {
		if !internal.RefreshDigestMatches(secret, rec.Value) {
			return nil, nil
		}
		out.Secret = secret
	}
	return out, nil
}

// SoftDelete retires a redeemed record. Without a grace period the record is
// deleted. With one, its expiry becomes min(current expiry, now + grace):
// unlike a plain "expire at now + grace", a record with less than the grace
// period left keeps its shorter lifetime, and a second redemption inside the
// window cannot move the deadline past the first one's.
// It reports whether the record still existed.
//
//	Performance: 1 Lua EVALSHA.
func (r *RefreshTokens) SoftDelete(ctx context.Context, rec *RefreshRecord) (bool, error) {
	if rec == nil {
		return false, nil
	}
	if r.grace <= 0 {
		return r.store.Delete(ctx, rec.UserID, rec.JTI)
	}
	return r.store.ExpireAtMost(ctx, rec.UserID, rec.JTI, r.grace)
}

// Delete removes (userID, jti) immediately, ignoring the grace period.
func (r *RefreshTokens) Delete(ctx context.Context, userID, jti string) (bool, error) {
	return r.store.Delete(ctx, userID, jti)
}

// DeleteAllForUser removes every record of userID immediately and returns
// how many were removed.
func (r *RefreshTokens) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	records, err := r.store.FindAll(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range records {
		ok, err := r.store.Delete(ctx, rec.UserID, rec.JTI)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// AnyFor reports whether userID holds at least one live refresh record.
func (r *RefreshTokens) AnyFor(ctx context.Context, userID string) (bool, error) {
	return r.store.AnyFor(ctx, userID)
}

// Find returns one record for the given user id and/or jti, or nil.
func (r *RefreshTokens) Find(ctx context.Context, userID, jti string) (*RefreshRecord, error) {
	rec, err := r.store.Find(ctx, userID, jti)
	if err != nil || rec == nil {
		return nil, err
	}
	return toRefreshRecord(rec), nil
}

// FindAll returns every record for the given user id and/or jti.
func (r *RefreshTokens) FindAll(ctx context.Context, userID, jti string) ([]*RefreshRecord, error) {
	records, err := r.store.FindAll(ctx, userID, jti)
	if err != nil {
		return nil, err
	}
	out := make([]*RefreshRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toRefreshRecord(rec))
	}
	return out, nil
}

// RemainingTTL returns the remaining lifetime of (userID, jti), or [TTLMissing].
func (r *RefreshTokens) RemainingTTL(ctx context.Context, userID, jti string) (time.Duration, error) {
	return r.store.RemainingTTL(ctx, userID, jti)
}

// Count returns the number of live refresh records.
func (r *RefreshTokens) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// Store exposes the underlying TTL store.
func (r *RefreshTokens) Store() *Store {
	return r.store
}

func toRefreshRecord(rec *Record) *RefreshRecord {
	return &RefreshRecord{
		UserID:    rec.UserID,
		JTI:       rec.JTI,
		Digest:    rec.Value,
		ExpiresAt: rec.ExpiresAt,
	}
}
