package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pharmacy_inventory/internal/auth"
)

// ClaimsKey is the gin context key holding *auth.Claims after RequireAuth.
const ClaimsKey = "claims"

// Authenticator checks a bearer token; *auth.Service implements it.
type Authenticator interface {
	Authenticate(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "Missing bearer token",
			})
			return
		}

		claims, err := a.Authenticate(strings.TrimSpace(token))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  msg,
			})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
