package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/service"
)

// OAuthHandler exposes the account-linking and token endpoints.
type OAuthHandler struct {
	OAuth  *service.OAuthService
	Logger *zap.Logger
}

// Authorize handles GET /authorize: it validates the client
// request, opens a handshake session, and serves the login page bound
// to that session.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	session, err := h.OAuth.BeginAuthorization(c.Request.Context(), service.BeginAuthorizationInput{
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		State:        c.Query("state"),
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	renderLoginPage(c, session.ID)
}

type loginRequest struct {
	SessionID string `json:"session_id" form:"session_id"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
}

// Login handles POST /authorize: it burns the handshake session,
// checks credentials, and returns the redirect URI carrying the fresh
// authorization code. The login page follows the redirect client-side.
func (h *OAuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed login payload."})
		return
	}

	redirect, err := h.OAuth.CompleteAuthorization(c.Request.Context(), req.SessionID, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_uri": redirect})
}

type tokenRequest struct {
	GrantType    string `form:"grant_type"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	RefreshToken string `form:"refresh_token"`
}

// Token handles POST /token for both supported grants.
func (h *OAuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed token request."})
		return
	}

	resp, err := h.OAuth.Exchange(c.Request.Context(), service.ExchangeInput{
		GrantType:    req.GrantType,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type revokeRequest struct {
	Token        string `form:"token"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
}

// Revoke handles POST /revoke. Revoking an unknown token still
// returns 200.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Malformed revoke request."})
		return
	}

	if err := h.OAuth.Revoke(c.Request.Context(), req.Token, req.ClientID, req.ClientSecret); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// TokenInfo handles GET /tokeninfo. The token arrives as a bearer
// header or an access_token query parameter.
func (h *OAuthHandler) TokenInfo(c *gin.Context) {
	raw := c.Query("access_token")
	if raw == "" {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			raw = strings.TrimSpace(parts[1])
		}
	}

	info, err := h.OAuth.Introspect(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// respondError maps service errors onto the OAuth error payload shape.
// Anything that is not an OAuthError is a 500 with a generic body.
func respondError(c *gin.Context, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
}
