// README: Firebase ID-token auth middleware and role checks.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stationq/internal/infra"
)

const (
	ctxUIDKey  = "auth.uid"
	ctxRoleKey = "auth.role"

	RoleDriver     = "driver"
	RoleDispatcher = "dispatcher"
)

// Auth verifies the bearer token on every request and stores the caller's uid
// and role claim in the gin context. Browsers cannot set headers on a
// WebSocket handshake, so upgrade requests may pass the token as the
// access_token query parameter instead.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role, _ := token.Claims["role"].(string)
		c.Set(ctxUIDKey, token.UID)
		c.Set(ctxRoleKey, role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" && websocket.IsWebSocketUpgrade(c.Request) {
		raw := strings.TrimSpace(c.Query("access_token"))
		return raw, raw != ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return raw, raw != ""
}

// RequireRole rejects authenticated callers whose role is not listed. It is
// a no-op when auth is disabled.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Authenticated(c) {
			c.Next()
			return
		}
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: role " + strings.Join(roles, " or ") + " required"})
	}
}

// Authenticated reports whether the Auth middleware ran for this request.
func Authenticated(c *gin.Context) bool {
	_, ok := c.Get(ctxUIDKey)
	return ok
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUIDKey)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRoleKey)
}
