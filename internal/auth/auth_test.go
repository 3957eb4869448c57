package auth

import (
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to be rejected")
	}
}

func TestJWT(t *testing.T) {
	tok, err := SignJWT(42, "secret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	uid, err := ParseJWT(tok, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if uid != 42 {
		t.Fatalf("unexpected uid %d", uid)
	}

	if _, err := ParseJWT(tok, "other-secret"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	expired, err := SignJWT(42, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := ParseJWT(expired, "secret"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token for expired jwt, got %v", err)
	}
}
