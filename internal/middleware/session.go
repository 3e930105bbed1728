package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionHeader = "X-Session-Token"
	SessionCookie = "cart_session"
	sessionKey    = "sessionToken"

	sessionMaxAge   = 30 * 24 * 60 * 60
	maxSessionBytes = 128
)

// Session resolves the cart session token from the header or cookie, minting
// a new one when neither is present. The token is echoed back in both.
func Session(secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(SessionHeader))
		if token == "" {
			token, _ = c.Cookie(SessionCookie)
		}
		if token == "" || len(token) > maxSessionBytes {
			token = uuid.NewString()
		}

		c.Set(sessionKey, token)
		c.Header(SessionHeader, token)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, token, sessionMaxAge, "/", "", secureCookie, true)
		c.Next()
	}
}

// SessionToken returns the token resolved by Session.
func SessionToken(c *gin.Context) string {
	return c.GetString(sessionKey)
}
