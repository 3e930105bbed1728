// Package middleware holds the gin middleware shared by all routes.
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/netriver-marketplace/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "userID"
	UserRoleKey = "userRole"
)

// AuthMiddleware requires a valid bearer token and stores the caller's ID
// and role on the context.
func AuthMiddleware(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid token format (must be Bearer)")
			return
		}

		claims, err := iss.ValidateToken(parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		userID, _ := claims.UserID()

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(UserRoleKey)
		if _, ok := c.Get(UserIDKey); !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if !slices.Contains(roles, role) {
			abort(c, http.StatusForbidden, "forbidden", "Access denied: "+strings.Join(roles, " or ")+" role required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by AuthMiddleware.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(UserIDKey)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}
