package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrack/api/internal/middleware"
)

// IssueLinkCode mints a short code the caller can type into another
// channel (e.g. read it from the Discord bot, enter it in the
// browser). Outstanding codes are independent: issuing a new one does
// not cancel earlier ones.
func (h HandlerSet) IssueLinkCode(c *gin.Context) {
	code, err := h.linkService.IssueLinkCode(c.Request.Context(), middleware.UID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemLinkCode trades a one-time link code for a full session on
// this channel. The code dies on first success; a replay gets 401.
func (h HandlerSet) RedeemLinkCode(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uid, ok, err := h.linkService.ValidateLinkCode(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_code"})
		return
	}

	h.issueSessionFor(c, uid)
}

func (h HandlerSet) IssueConnectToken(c *gin.Context) {
	token, err := h.linkService.IssueConnectToken(c.Request.Context(), middleware.UID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connectToken": token})
}

type redeemConnectRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h HandlerSet) RedeemConnectToken(c *gin.Context) {
	var req redeemConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uid, ok, err := h.linkService.ValidateConnectToken(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	h.issueSessionFor(c, uid)
}

func (h HandlerSet) issueSessionFor(c *gin.Context, uid string) {
	token, err := h.authService.IssueSession(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	maxAge := int(h.cfg.Security.SessionTTL.Seconds())
	c.SetCookie(middleware.SessionCookie, token, maxAge, "/", "", h.cfg.Environment == "production", true)
	c.JSON(http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}
