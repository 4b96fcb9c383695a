package jwt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPayloadDefaultsAndReservedClaims(t *testing.T) {
	now := time.Unix(1700000000, 750_000_000)
	p, err := NewPayload(PayloadInput{
		ID:     "abc",
		Now:    now,
		TTL:    15 * time.Minute,
		User:   map[string]any{"id": "u1"},
		Issuer: "gotoken",
		Claims: map[string]any{
			"foo":  "bar",
			"jti":  "ignored",
			"exp":  1,
			"user": "ignored",
			"sub":  "login",
		},
	})
	require.NoError(t, err)

	require.Equal(t, "abc", p.ID)
	require.Equal(t, int64(1700000000), p.IssuedAt.Unix())
	require.Zero(t, p.IssuedAt.Nanosecond())
	require.Equal(t, p.IssuedAt, p.OriginalAt)
	require.Equal(t, p.IssuedAt.Add(15*time.Minute), p.ExpiresAt)
	require.Equal(t, "gotoken", p.Issuer)
	require.Equal(t, "login", p.Subject)
	require.Equal(t, map[string]any{"foo": "bar"}, p.Extra)
	require.Equal(t, map[string]any{"id": "u1"}, p.User)
}

func TestNewPayloadOriginalAt(t *testing.T) {
	now := time.Unix(1700000000, 0)
	in := PayloadInput{ID: "abc", Now: now, TTL: time.Minute, User: map[string]any{"id": 1}}

	in.Claims = map[string]any{"oat": json.Number("1699990000")}
	p, err := NewPayload(in)
	require.NoError(t, err)
	require.Equal(t, int64(1699990000), p.OriginalAt.Unix())
	require.Equal(t, int64(1700000000), p.IssuedAt.Unix())

	in.Claims = map[string]any{"oat": now.Add(time.Hour).Unix()}
	_, err = NewPayload(in)
	require.ErrorIs(t, err, ErrInvalidClaim)

	in.Claims = map[string]any{"oat": "yesterday"}
	_, err = NewPayload(in)
	require.ErrorIs(t, err, ErrInvalidClaim)
}

func TestNewPayloadRejectsIncompleteInput(t *testing.T) {
	now := time.Unix(1700000000, 0)
	_, err := NewPayload(PayloadInput{Now: now, TTL: time.Minute, User: map[string]any{}})
	require.ErrorIs(t, err, ErrMissingClaim)

	_, err = NewPayload(PayloadInput{ID: "abc", Now: now, TTL: time.Minute})
	require.ErrorIs(t, err, ErrMissingClaim)

	_, err = NewPayload(PayloadInput{ID: "abc", Now: now, User: map[string]any{}})
	require.ErrorIs(t, err, ErrInvalidClaim)
}

func TestPayloadCarryOverFeedsNextPayload(t *testing.T) {
	first, err := NewPayload(PayloadInput{
		ID:   "first",
		Now:  time.Unix(1700000000, 0),
		TTL:  time.Second,
		User: map[string]any{"id": 1},
		Claims: map[string]any{
			"foo": "bar",
			"aud": []string{"web", "api"},
		},
	})
	require.NoError(t, err)

	second, err := NewPayload(PayloadInput{
		ID:     "second",
		Now:    time.Unix(1700000500, 0),
		TTL:    time.Second,
		User:   map[string]any{"id": 1},
		Claims: first.CarryOver(),
	})
	require.NoError(t, err)

	require.Equal(t, first.OriginalAt, second.OriginalAt)
	require.Equal(t, first.Extra, second.Extra)
	require.Equal(t, []string{"web", "api"}, second.Audience)
	require.Equal(t, int64(1700000500), second.IssuedAt.Unix())
}

func TestPayloadFromClaimsTypes(t *testing.T) {
	claims := map[string]any{
		"jti":  "abc",
		"iat":  json.Number("1700000000"),
		"oat":  float64(1690000000),
		"exp":  json.Number("1700000060"),
		"user": map[string]any{"id": json.Number("42")},
		"aud":  []any{"a", "b"},
		"role": "admin",
	}
	p, err := PayloadFromClaims(claims)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, p.Audience)
	require.Equal(t, "admin", p.Extra["role"])

	id, err := p.UserID("id")
	require.NoError(t, err)
	require.Equal(t, "42", id)

	_, err = p.UserID("uuid")
	require.ErrorIs(t, err, ErrMissingClaim)

	claims["user"] = "not-an-object"
	_, err = PayloadFromClaims(claims)
	require.ErrorIs(t, err, ErrInvalidClaim)

	claims["user"] = map[string]any{"id": 1}
	claims["aud"] = []any{1}
	_, err = PayloadFromClaims(claims)
	require.ErrorIs(t, err, ErrInvalidClaim)
}

func TestPayloadClaimLookup(t *testing.T) {
	p, err := NewPayload(PayloadInput{
		ID:     "abc",
		Now:    time.Unix(1700000000, 0),
		TTL:    time.Minute,
		User:   map[string]any{"id": 1},
		Claims: map[string]any{"foo": "bar"},
	})
	require.NoError(t, err)

	v, ok := p.Claim("foo")
	require.True(t, ok)
	require.Equal(t, "bar", v)

	v, ok = p.Claim("exp")
	require.True(t, ok)
	require.Equal(t, int64(1700000060), v)

	_, ok = p.Claim("iss")
	require.False(t, ok)

	require.True(t, IsReserved("oat"))
	require.False(t, IsReserved("foo"))
}
