package security

import (
	"bytes"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, hash, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if !bytes.Equal(hash, HashToken(token)) {
		t.Error("returned hash does not match HashToken(token)")
	}

	other, _, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == other {
		t.Error("two tokens collided")
	}
}

func TestGenerateToken_DefaultsLength(t *testing.T) {
	token, _, err := GenerateToken(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == "" {
		t.Fatal("empty token for zero length")
	}
}

func TestGenerateLinkCode(t *testing.T) {
	code, hash, err := GenerateLinkCode(6)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q, want 6 digits", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in code %q", r, code)
		}
	}
	if !bytes.Equal(hash, HashToken(code)) {
		t.Error("returned hash does not match HashToken(code)")
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	if !bytes.Equal(HashToken("abc"), HashToken("abc")) {
		t.Error("same input hashed differently")
	}
	if bytes.Equal(HashToken("abc"), HashToken("abd")) {
		t.Error("different inputs hashed identically")
	}
}
