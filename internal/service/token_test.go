package service_test

import (
	"testing"
	"time"

	"chatwire/internal/service"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := service.NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "a@x.com" {
		t.Fatalf("subject = %q, want a@x.com", subject)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	token, err := service.NewTokenIssuer("secret-one", time.Hour).Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := service.NewTokenIssuer("secret-two", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := service.NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue("a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestTokenIssuer_EmptySecret(t *testing.T) {
	if _, err := service.NewTokenIssuer("", time.Hour).Issue("a@x.com"); err == nil {
		t.Fatal("expected error without a secret")
	}
}
