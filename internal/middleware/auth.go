package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookie carries the session token for browser clients; API
// clients use a Bearer header instead.
const SessionCookie = "session"

const uidContextKey = "uid"

// SessionValidator is the slice of the auth service this middleware
// needs. Validation hits the store every time; nothing here caches
// token validity.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, bool, error)
}

func Auth(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		uid, ok, err := sessions.ValidateSession(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
		if !ok {
			// Drop the stale cookie so the browser stops replaying it.
			c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(uidContextKey, uid)
		c.Next()
	}
}

// UID returns the authenticated user id set by Auth.
func UID(c *gin.Context) string {
	return c.GetString(uidContextKey)
}

// TokenFromRequest extracts the session token from the Authorization
// header, falling back to the session cookie.
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}
