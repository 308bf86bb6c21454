package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/pkg/jwtutil"
	"pdfchat/internal/transport/http/response"
)

const (
	ContextUserIDKey     = "user_id"
	ContextUsernameKey   = "username"
	ContextCredentialKey = "provider_credential"
)

type CredentialConfig struct {
	JWTSecret  string
	CookieName string
	HeaderName string
}

// RequireCredential admits a request that carries either an opaque provider
// credential (cookie or header) or a valid bearer token. The credential is
// stored untouched for the provider call.
func RequireCredential(cfg CredentialConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := ""
		if cfg.HeaderName != "" {
			credential = strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		}
		if credential == "" && cfg.CookieName != "" {
			if v, err := c.Cookie(cfg.CookieName); err == nil {
				credential = strings.TrimSpace(v)
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		const prefix = "Bearer "
		if strings.HasPrefix(authHeader, prefix) {
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			claims, err := jwtutil.ParseToken(cfg.JWTSecret, token)
			if err != nil && credential == "" {
				response.ErrorWithDetails(c, http.StatusUnauthorized, response.MessageUnauthenticated, "invalid or expired token")
				c.Abort()
				return
			}
			if err == nil {
				c.Set(ContextUserIDKey, claims.UserID)
				c.Set(ContextUsernameKey, claims.Username)
			}
		}

		if credential == "" && c.GetString(ContextUserIDKey) == "" {
			response.Error(c, http.StatusUnauthorized, response.MessageUnauthenticated)
			c.Abort()
			return
		}

		c.Set(ContextCredentialKey, credential)
		c.Next()
	}
}
