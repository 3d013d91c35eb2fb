package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OAuth state parameter: a short-lived signed token carrying the
// browser session nonce, so the callback can verify the flow was
// started by us.
type stateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

func GenerateState(secret string, nonce string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := stateClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// ValidateState returns the nonce embedded in a state token, or an
// error for a forged or expired one.
func ValidateState(secret string, state string) (string, error) {
	token, err := jwt.ParseWithClaims(state, &stateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid state token")
	}
	return claims.Nonce, nil
}
