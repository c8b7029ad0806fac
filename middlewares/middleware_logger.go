package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/utils"
)

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := utils.InfoLogger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  status,
			"latency": time.Since(start),
			"ip":      c.ClientIP(),
		})
		// query string is left out on purpose: websocket tokens travel there
		if status >= 500 {
			utils.ErrorLogger.WithFields(entry.Data).Error("request failed")
			return
		}
		entry.Info("request")
	}
}
