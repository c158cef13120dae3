package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"horizon-web/internal/apikey"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the key on programmatic requests.
const APIKeyHeader = "X-Api-Key"

const ginPrincipalKey = "apikey.principal"

// KeyAuthenticator maps a plaintext API key to its principal.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (string, error)
}

// RequireAPIKey rejects requests without a valid X-Api-Key header.
func RequireAPIKey(keys KeyAuthenticator, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		principalID, err := keys.Authenticate(c.Request.Context(), key)
		if err != nil {
			if !errors.Is(err, apikey.ErrNotFound) {
				log.ErrorContext(c.Request.Context(), "api key lookup failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Set(ginPrincipalKey, principalID)
		c.Next()
	}
}

// APIKeyPrincipal returns the principal authenticated by RequireAPIKey.
func APIKeyPrincipal(c *gin.Context) (string, bool) {
	id := c.GetString(ginPrincipalKey)
	return id, id != ""
}
