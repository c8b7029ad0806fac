package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/middlewares"
	"github.com/yeremiapane/order-relay/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin sudah dicek oleh middleware CORS
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// KDSHandler -> endpoint WebSocket, satu koneksi per board / customer
func KDSHandler(hub *kds.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(middlewares.CtxRole)
		if role == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		restaurantID := c.GetUint(middlewares.CtxRestaurantID)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.ErrorLogger.Warnf("Websocket upgrade failed: %v", err)
			return
		}

		utils.InfoLogger.WithField("role", role).Debug("Websocket client connected")
		hub.Serve(ws, role, restaurantID)
	}
}
