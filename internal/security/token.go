package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// GenerateToken returns an opaque credential of length random bytes
// (base64url encoded) together with the sha256 digest stored at rest.
func GenerateToken(length int) (string, []byte, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

// GenerateLinkCode returns a short numeric code a user can type from
// one device into another, plus its storage hash. Rejection sampling
// keeps the digits uniform.
func GenerateLinkCode(digits int) (string, []byte, error) {
	if digits <= 0 {
		digits = 6
	}

	code := make([]byte, digits)
	buf := make([]byte, 1)
	for i := 0; i < digits; {
		if _, err := rand.Read(buf); err != nil {
			return "", nil, fmt.Errorf("generate link code: %w", err)
		}
		// 250 is the largest multiple of 10 below 256.
		if buf[0] >= 250 {
			continue
		}
		code[i] = '0' + buf[0]%10
		i++
	}

	return string(code), HashToken(string(code)), nil
}

func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
