package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	connrepo "zapflow_backend/internal/connection/repository"
)

const connectionContextKey = "webhookConnection"

// ConnectionStore resolves webhook tokens to connections.
type ConnectionStore interface {
	GetByWebhookToken(ctx context.Context, token string) (connrepo.Connection, error)
}

// TokenAuthMiddleware resolves the :token path parameter to a connection and
// sets it on the gin context. Unknown tokens are rejected without detail.
func TokenAuthMiddleware(connections ConnectionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		conn, err := connections.GetByWebhookToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, connrepo.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(connectionContextKey, conn)
		c.Next()
	}
}

func connectionFromContext(c *gin.Context) (connrepo.Connection, bool) {
	value, exists := c.Get(connectionContextKey)
	if !exists {
		return connrepo.Connection{}, false
	}
	conn, ok := value.(connrepo.Connection)
	return conn, ok
}
