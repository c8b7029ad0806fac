package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-relay/utils"
)

// WebSocketAuthMiddleware reads an optional ?token=. Without one the client
// is an anonymous customer who may only follow order rooms.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.Set(CtxRole, RoleCustomer)
			c.Set(CtxRestaurantID, uint(0))
			c.Next()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.InfoLogger.WithField("ip", c.ClientIP()).Debugf("Websocket token rejected: %v", err)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxRestaurantID, claims.RestaurantID)
		c.Next()
	}
}
