package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/localnotify/pkg/auth"
	"github.com/jwalitptl/localnotify/pkg/errors"
	"github.com/jwalitptl/localnotify/pkg/httputil"
)

const ContextSubject = "subject"

type AuthMiddleware struct {
	tokens auth.JWTService
}

// NewAuthMiddleware returns a middleware that lets every request through
// when tokens is nil.
func NewAuthMiddleware(tokens auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores its subject in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.tokens == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.AbortWithError(c, errors.Unauthorized(nil))
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			httputil.AbortWithError(c, errors.Unauthorized(nil))
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			httputil.AbortWithError(c, errors.Unauthorized(err))
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Next()
	}
}
