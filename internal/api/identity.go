package api

import (
	"net/http"
	"strconv"

	"shop-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// identityMiddleware extracts the authenticated caller from headers set by
// the edge auth layer. Session mechanics live upstream; this service only
// trusts the forwarded identity.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid identity"})
			return
		}

		c.Set(identityKey, service.Identity{
			UserID: userID,
			Email:  c.GetHeader("X-User-Email"),
			Role:   c.GetHeader("X-User-Role"),
		})
		c.Next()
	}
}

func callerIdentity(c *gin.Context) service.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(service.Identity); ok {
			return id
		}
	}
	return service.Identity{}
}
