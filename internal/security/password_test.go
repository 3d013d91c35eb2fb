package security

import "testing"

func TestPassword_Roundtrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery", hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("correct password rejected")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Error("wrong password accepted")
	}
}

func TestPassword_SaltVaries(t *testing.T) {
	h1, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if string(h1) == string(h2) {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	if _, err := VerifyPassword("x", []byte("not a hash")); err == nil {
		t.Error("malformed hash verified without error")
	}
}
