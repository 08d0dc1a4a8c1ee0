package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("user-1", "user@example.com", "secret", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(tok, "secret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "user@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	tok, err := GenerateToken("user-1", "user@example.com", "secret", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(tok, "other-secret"); err == nil {
		t.Fatal("want error for wrong secret")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	if _, err := ValidateToken("not-a-token", "secret"); err == nil {
		t.Fatal("want error for malformed token")
	}
}
