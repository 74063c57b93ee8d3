package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// tokenQueryParam carries the access token for browser WebSocket handshakes,
// which cannot set an Authorization header.
const tokenQueryParam = "token"

var ErrMissingToken = errors.New("missing bearer token")

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.Request)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.UserID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// Identify verifies the access token of a WebSocket handshake. The token may
// come from the Authorization header or the token query parameter.
func (m *Manager) Identify(r *http.Request) (Claims, error) {
	tok := bearerToken(r)
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
	}
	if tok == "" {
		return Claims{}, ErrMissingToken
	}
	return m.Verify(tok, TokenTypeAccess, time.Now())
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(authorizationHeader))
	if !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}
