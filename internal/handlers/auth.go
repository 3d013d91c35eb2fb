package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medtrack/api/internal/middleware"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/security"
	"medtrack/api/internal/service"
)

const oauthNonceCookie = "oauth_nonce"

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName" binding:"required"`
}

type userResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email,omitempty"`
	DisplayName string  `json:"displayName"`
	DiscordID   *string `json:"discordId,omitempty"`
	CreatedVia  string  `json:"createdVia"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.sendAuthResponse(c, result)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	h.sendAuthResponse(c, result)
}

// Logout revokes whatever credential the request carried. Revoking an
// already-dead token still returns 204.
func (h HandlerSet) Logout(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	if token != "" {
		if _, err := h.authService.RevokeSession(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return
		}
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	uid := middleware.UID(c)
	user, err := h.authService.GetUser(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	count, err := h.authService.SessionCount(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":           toUserResponse(user),
		"activeSessions": count,
	})
}

type sessionResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	sessions, err := h.authService.ListSessions(c.Request.Context(), middleware.UID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse{
			ID:        session.ID,
			CreatedAt: session.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ExpiresAt: session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (h HandlerSet) DeleteAccount(c *gin.Context) {
	if err := h.authService.DeleteAccount(c.Request.Context(), middleware.UID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// DiscordStart hands the browser the consent URL together with a
// signed state token bound to a nonce cookie.
func (h HandlerSet) DiscordStart(c *gin.Context) {
	nonce := uuid.NewString()
	state, err := security.GenerateState(h.cfg.Security.StateSecret, nonce, h.cfg.Security.StateTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.SetCookie(oauthNonceCookie, nonce, int(h.cfg.Security.StateTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"url": h.discord.AuthorizeURL(state)})
}

func (h HandlerSet) DiscordCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state required"})
		return
	}

	nonce, err := security.ValidateState(h.cfg.Security.StateSecret, state)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_state"})
		return
	}
	cookieNonce, err := c.Cookie(oauthNonceCookie)
	if err != nil || cookieNonce != nonce {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "state_mismatch"})
		return
	}
	c.SetCookie(oauthNonceCookie, "", -1, "/", "", false, true)

	identity, err := h.discord.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.log.Warn().Err(err).Msg("discord code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "discord_exchange_failed"})
		return
	}

	result, err := h.authService.LoginWithDiscord(c.Request.Context(), identity.ID, identity.Username)
	if err != nil {
		if errors.Is(err, repository.ErrDiscordAlreadyLinked) {
			c.JSON(http.StatusConflict, gin.H{"error": "discord_already_linked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	h.sendAuthResponse(c, result)
}

func (h HandlerSet) sendAuthResponse(c *gin.Context, result service.AuthResult) {
	maxAge := int(h.cfg.Security.SessionTTL.Seconds())
	c.SetCookie(middleware.SessionCookie, result.Token, maxAge, "/", "", h.cfg.Environment == "production", true)

	c.JSON(http.StatusOK, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		DiscordID:   user.DiscordID,
		CreatedVia:  string(user.CreatedVia),
	}
}
