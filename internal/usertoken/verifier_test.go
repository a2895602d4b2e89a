package usertoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestVerifySubject(t *testing.T) {
	secret := []byte("test-secret")
	v, err := NewVerifier(Config{Secret: secret, Issuer: "issuer-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "user-a",
		Issuer:    "issuer-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Second)),
	})
	if sub, err := v.VerifySubject(signed); err != nil || sub != "user-a" {
		t.Fatalf("verify failed: sub=%s err=%v", sub, err)
	}
}

func TestVerifySubjectRejectsWrongIssuer(t *testing.T) {
	secret := []byte("test-secret")
	v, err := NewVerifier(Config{Secret: secret, Issuer: "issuer-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "user-a",
		Issuer:    "issuer-b",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	if _, err := v.VerifySubject(signed); err == nil {
		t.Fatalf("expected wrong issuer to fail")
	}
}

func TestVerifySubjectRejectsWrongSecret(t *testing.T) {
	v, err := NewVerifier(Config{Secret: []byte("right-secret"), Issuer: "issuer-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, []byte("wrong-secret"), jwt.RegisteredClaims{
		Subject:   "user-a",
		Issuer:    "issuer-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	if _, err := v.VerifySubject(signed); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
}

func TestVerifySubjectRejectsFutureIssuedAt(t *testing.T) {
	secret := []byte("test-secret")
	v, err := NewVerifier(Config{Secret: secret, Issuer: "issuer-a", Leeway: 5 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "user-a",
		Issuer:    "issuer-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(2 * time.Minute)),
	})
	if _, err := v.VerifySubject(signed); err == nil {
		t.Fatalf("expected future iat token to fail")
	}
}

func TestVerifySubjectRejectsMissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	v, err := NewVerifier(Config{Secret: secret, Issuer: "issuer-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, secret, jwt.RegisteredClaims{
		Issuer:    "issuer-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	if _, err := v.VerifySubject(signed); err == nil {
		t.Fatalf("expected missing subject to fail")
	}
}
