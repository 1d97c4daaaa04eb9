package security

import "testing"

func TestHashRefreshToken_Deterministic(t *testing.T) {
	a := HashRefreshToken("token-a")
	b := HashRefreshToken("token-a")
	if a != b {
		t.Error("same token should hash identically")
	}
	if a == HashRefreshToken("token-b") {
		t.Error("different tokens should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hex SHA-256 length = %d, want 64", len(a))
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("the-token")
	if !RefreshTokenHashEqual("the-token", stored) {
		t.Error("matching token should compare equal")
	}
	if RefreshTokenHashEqual("other-token", stored) {
		t.Error("non-matching token should not compare equal")
	}
	if RefreshTokenHashEqual("the-token", "") {
		t.Error("empty stored hash should not compare equal")
	}
}
