package goToken

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func forgeClaims(issued *Issued) gojwt.MapClaims {
	return gojwt.MapClaims{
		"jti":  issued.JTI,
		"iat":  issued.Payload.IssuedAt.Unix(),
		"oat":  issued.Payload.OriginalAt.Unix(),
		"exp":  issued.ExpiresAt.Unix(),
		"user": map[string]any{"id": 7, "name": "ada", "role": "root"},
	}
}

func TestSecurityInvariantUnsignedTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	issued := env.issue(t, 7, nil)

	forged, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, forgeClaims(issued)).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("forge failed: %v", err)
	}

	if _, err := env.engine.Verify(context.Background(), forged, issued.Secret); !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("expected ErrAlgorithmMismatch, got %v", err)
	}
}

func TestSecurityInvariantForeignKeyRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	issued := env.issue(t, 7, nil)

	forged, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, forgeClaims(issued)).
		SignedString([]byte("another-secret-another-secret-00"))
	if err != nil {
		t.Fatalf("forge failed: %v", err)
	}

	if _, err := env.engine.Verify(context.Background(), forged, issued.Secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestSecurityInvariantSecretBoundToToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ada := env.issue(t, 7, nil)
	adaOther := env.issue(t, 7, nil)
	bob := env.issue(t, 8, nil)
	env.advance(2 * time.Minute)

	for _, secret := range []string{bob.Secret, adaOther.Secret} {
		if _, err := env.engine.Verify(context.Background(), ada.Token, secret); !errors.Is(err, ErrRefreshTokenNotFound) {
			t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
		}
	}
}

func TestSecurityInvariantRefreshReplayAfterGraceFails(t *testing.T) {
	env := newTestEnv(t, nil)
	issued := env.issue(t, 7, nil)
	env.advance(2 * time.Minute)

	if _, err := env.engine.Verify(context.Background(), issued.Token, issued.Secret); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	env.advance(env.engine.Config().Refresh.GracePeriod + time.Second)

	if _, err := env.engine.Verify(context.Background(), issued.Token, issued.Secret); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected replay to fail after grace, got %v", err)
	}
}

func TestSecurityInvariantStoreHoldsOnlyDigests(t *testing.T) {
	env := newTestEnv(t, nil)
	issued := env.issue(t, 7, nil)

	keys := env.mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "refresh:7:") {
		t.Fatalf("unexpected keys %v", keys)
	}
	value, err := env.mr.Get(keys[0])
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value == issued.Secret || strings.Contains(value, issued.Secret) {
		t.Fatal("refresh secret persisted in clear")
	}
	if strings.Contains(issued.Token, issued.Secret) {
		t.Fatal("refresh secret embedded in access token")
	}
}
