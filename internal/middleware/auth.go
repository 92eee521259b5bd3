package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/converse-chat/converse/internal/auth"
)

// AccessCookieName is the cookie carrying the access token. The browser
// client never reads it (http-only); the middleware does.
const AccessCookieName = "accessToken"

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// Context keys under which the decoded identity is stored for handlers.
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
	ContextKeyName   = "name"
)

// RequireAuth returns a middleware that authenticates every request in the
// group before any route logic runs. Credential lookup order:
//
//  1. the accessToken cookie
//  2. an "Authorization: Bearer <token>" header
//
// No credential or an invalid/expired one aborts with 401. The middleware
// never touches the store; everything it needs is inside the token.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := credentialFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing credentials",
			})
			return
		}

		claims, err := auth.ParseAccessToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Set(ContextKeyName, claims.Name)

		c.Next()
	}
}

func credentialFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessCookieName); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// GetUserID returns the authenticated user's ID, or uuid.Nil when the
// middleware did not run. uuid.Nil matches no row, so a handler that slips
// through still cannot read anyone's data.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetRole(c *gin.Context) string {
	val, exists := c.Get(ContextKeyRole)
	if !exists {
		return ""
	}
	role, ok := val.(string)
	if !ok {
		return ""
	}
	return role
}

func GetName(c *gin.Context) string {
	val, exists := c.Get(ContextKeyName)
	if !exists {
		return ""
	}
	name, ok := val.(string)
	if !ok {
		return ""
	}
	return name
}
