package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/auth"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"

	// Browsers cannot set headers on a websocket upgrade, so the token
	// may also arrive as ?access_token=.
	tokenQueryParam = "access_token"
)

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": apperr.CodeUnauthenticated, "message": msg},
	})
}

// AuthMiddleware verifies the bearer token and stores the caller's id in
// the gin context. Requests without a valid token never reach a handler.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query(tokenQueryParam)

		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abortUnauthenticated(c, "invalid authorization format, expected: Bearer <token>")
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			abortUnauthenticated(c, "missing authorization header")
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			abortUnauthenticated(c, "invalid or expired token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// GetUserID returns uuid.Nil when the request was not authenticated.
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

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}
