package auth

import (
	"testing"
	"time"
)

func newTestTokenService() *TokenService {
	return NewTokenService([]byte("test-secret-key-32bytes-long!!"), 15*time.Minute, 7*24*time.Hour)
}

func newTestUser() *User {
	return &User{
		ID:       "user-123",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     RoleAdmin,
	}
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	ts := newTestTokenService()
	user := newTestUser()

	token, err := ts.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ts.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	if claims.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", claims.UserID, user.ID)
	}
	if claims.Username != user.Username {
		t.Errorf("Username = %q, want %q", claims.Username, user.Username)
	}
	if claims.Role != string(user.Role) {
		t.Errorf("Role = %q, want %q", claims.Role, string(user.Role))
	}
	if claims.Issuer != "routefleet" {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, "routefleet")
	}
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	ts1 := NewTokenService([]byte("secret-one-is-32-bytes-long!!!!"), 15*time.Minute, 7*24*time.Hour)
	ts2 := NewTokenService([]byte("secret-two-is-32-bytes-long!!!!"), 15*time.Minute, 7*24*time.Hour)

	token, err := ts1.IssueAccessToken(newTestUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	_, err = ts2.ValidateAccessToken(token)
	if err == nil {
		t.Error("expected error validating token with wrong secret")
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	ts := NewTokenService([]byte("test-secret-key-32bytes-long!!"), -1*time.Second, 7*24*time.Hour)
	token, err := ts.IssueAccessToken(newTestUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	_, err = ts.ValidateAccessToken(token)
	if err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	ts := newTestTokenService()
	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ts.ValidateAccessToken(input); err == nil {
			t.Errorf("expected error for input %q", input)
		}
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	ts := newTestTokenService()

	raw, hash, expiresAt, err := ts.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if raw == "" || hash == "" {
		t.Fatal("expected non-empty raw token and hash")
	}
	if hash != HashToken(raw) {
		t.Error("hash does not match HashToken(raw)")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expected expiresAt in the future")
	}

	raw2, _, _, err := ts.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if raw == raw2 {
		t.Error("expected unique refresh tokens")
	}
}

func TestHashPasswordRoundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Error("expected password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("expected wrong password to fail")
	}
}
