package security

import (
	"testing"
	"time"
)

func TestState_Roundtrip(t *testing.T) {
	state, err := GenerateState("secret", "nonce-123", 10*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	nonce, err := ValidateState("secret", state)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if nonce != "nonce-123" {
		t.Errorf("nonce = %q, want nonce-123", nonce)
	}
}

func TestState_WrongSecret(t *testing.T) {
	state, err := GenerateState("secret", "nonce-123", 10*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateState("other-secret", state); err == nil {
		t.Error("state validated with the wrong secret")
	}
}

func TestState_Expired(t *testing.T) {
	state, err := GenerateState("secret", "nonce-123", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ValidateState("secret", state); err == nil {
		t.Error("expired state validated")
	}
}

func TestState_Garbage(t *testing.T) {
	if _, err := ValidateState("secret", "not.a.jwt"); err == nil {
		t.Error("garbage state validated")
	}
}
