package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	token, err := issuer.GenerateSessionToken("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("Expected session ID 'session-1', got '%s'", claims.SessionID)
	}
}

func TestSessionToken_Rejections(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	other, _ := NewTokenIssuer("other-secret", time.Hour)
	expired, _ := NewTokenIssuer("test-secret", -time.Minute)

	if _, err := issuer.GenerateSessionToken(""); err == nil {
		t.Error("Expected error for empty session ID")
	}

	foreign, _ := other.GenerateSessionToken("session-1")
	if _, err := issuer.ValidateToken(foreign); err == nil {
		t.Error("Expected error for token signed with another secret")
	}

	stale, _ := expired.GenerateSessionToken("session-1")
	if _, err := issuer.ValidateToken(stale); err == nil {
		t.Error("Expected error for expired token")
	}

	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected error for garbage token")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{SessionID: "session-1"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := issuer.ValidateToken(unsigned); err == nil {
		t.Error("Expected error for unsigned token")
	}
}

func TestNewTokenIssuer_RandomSecret(t *testing.T) {
	a, err := NewTokenIssuer("", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}
	b, _ := NewTokenIssuer("", time.Hour)

	token, _ := a.GenerateSessionToken("session-1")
	if _, err := b.ValidateToken(token); err == nil {
		t.Error("Issuers with random secrets should not accept each other's tokens")
	}
	if _, err := a.ValidateToken(token); err != nil {
		t.Errorf("Issuer should accept its own token: %v", err)
	}
}
