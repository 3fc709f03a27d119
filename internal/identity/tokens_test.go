package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMintAndValidateAccess(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := issuer.MintAccess(userID)
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}

	claims, err := issuer.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess returned error: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected UserID %s, got %s", userID, claims.UserID)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}
}

func TestValidateAccessRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", 15*time.Minute).MintAccess(uuid.New())
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}

	if _, err := NewTokenIssuer("secret-b", 15*time.Minute).ValidateAccess(token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestValidateAccessRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.MintAccess(uuid.New())
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}
	if _, err := issuer.ValidateAccess(token); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 15*time.Minute)

	if _, err := issuer.ValidateAccess("not-a-jwt"); err == nil {
		t.Fatal("expected validation to fail for a malformed token")
	}
}

func TestNewRefreshTokenIsOpaqueAndHashed(t *testing.T) {
	token, hash, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken returned error: %v", err)
	}
	if token == "" || strings.ContainsAny(token, "+/=") {
		t.Fatalf("expected url-safe unpadded token, got %q", token)
	}
	if hash != HashRefreshToken(token) {
		t.Fatal("stored hash must match the hash of the issued token")
	}

	other, _, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken returned error: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens across generations")
	}
}
