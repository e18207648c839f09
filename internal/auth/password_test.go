package auth

import "testing"

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "secret123") {
		t.Error("CheckPassword should accept the original password")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword should reject a different password")
	}
}

func TestCheckPassword_InvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not bcrypt", "plain-text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CheckPassword(tt.hash, "anything") {
				t.Errorf("CheckPassword(%q) = true, want false", tt.hash)
			}
		})
	}
}
