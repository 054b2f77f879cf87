package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medev213/darksmart/internal/token"
)

const claimsKey = "accessClaims"

// Auth validates Authorization headers against the stateless access
// token signer.
type Auth struct {
	Tokens *token.Service
}

// ValidateJWT ensures the request carries a valid bearer token and
// attaches its claims for handlers.
func (m *Auth) ValidateJWT(c *gin.Context) {
	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Bearer token required."})
		return
	}
	claims, ok := m.Tokens.VerifyAccessToken(raw)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

// GetAccessClaims exposes the verified token claims to handlers.
func GetAccessClaims(c *gin.Context) (token.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := value.(token.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
