package services

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour, 24*time.Hour)

	token, err := svc.GenerateAccess(42, "alice")
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}

	claims, err := svc.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Errorf("claims = (%d, %q), want (42, alice)", claims.UserID, claims.Username)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute, 24*time.Hour)

	token, err := svc.GenerateAccess(1, "bob")
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	if _, err := svc.ValidateAccess(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestRefreshTokenNotValidAsAccess(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour, 24*time.Hour)

	refresh, err := svc.GenerateRefresh(1, "bob")
	if err != nil {
		t.Fatalf("GenerateRefresh: %v", err)
	}
	if _, err := svc.ValidateAccess(refresh); err == nil {
		t.Fatal("refresh token must not pass access validation")
	}
	if _, err := svc.ValidateRefresh(refresh); err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour, 24*time.Hour)
	other := NewTokenService("other-secret", time.Hour, 24*time.Hour)

	token, err := svc.GenerateAccess(1, "bob")
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	if _, err := other.ValidateAccess(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}
