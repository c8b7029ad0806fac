package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-relay/config"
	"github.com/yeremiapane/order-relay/controllers"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/middlewares"
	"gorm.io/gorm"
)

// SetupRouter builds the relay HTTP surface. Order mutations go through
// publisher, which is the hub itself or the broker relay in front of it.
func SetupRouter(db *gorm.DB, hub *kds.Hub, publisher kds.Publisher, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply security middlewares
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(cfg.CORSOrigins))
	r.Use(middlewares.LoggerMiddleware())

	userCtrl := controllers.NewUserController(db)
	adminCtrl := controllers.NewAdminController(db)
	orderCtrl := controllers.NewOrderController(db, publisher)
	menuCtrl := controllers.NewMenuController(db)
	tableCtrl := controllers.NewTableController(db)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Public routes (login dibatasi 5x/menit per IP)
	r.POST("/login", middlewares.NewStrictRateLimiter(), userCtrl.Login)

	// websocket, token opsional
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), controllers.KDSHandler(hub))

	api := r.Group("/api")

	// customer (anonymous) routes
	customer := api.Group("/")
	customer.Use(middlewares.NewRateLimiter(100*time.Millisecond, 20).RateLimit())
	{
		customer.GET("/restaurants/:restaurant_id/menu", menuCtrl.ListMenu)
		customer.GET("/restaurants/:restaurant_id/tables", tableCtrl.ListTables)
		customer.POST("/restaurants/:restaurant_id/orders", orderCtrl.CreateOrder)
		customer.GET("/orders/:order_id", orderCtrl.GetOrderByID)
	}

	auth := api.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.GET("/profile", userCtrl.GetProfile)
		auth.POST("/logout", userCtrl.Logout)

		// admin
		auth.POST("/users", userCtrl.Register)
		auth.POST("/restaurants", adminCtrl.CreateRestaurant)
		auth.PATCH("/restaurants/:restaurant_id/subscription", adminCtrl.UpdateSubscription)
		auth.GET("/restaurants/:restaurant_id/stats", adminCtrl.GetOrderStats)
		auth.POST("/restaurants/:restaurant_id/menu", menuCtrl.CreateMenuItem)
		auth.POST("/restaurants/:restaurant_id/tables", tableCtrl.CreateTable)

		// kitchen / cashier boards
		board := auth.Group("/restaurants/:restaurant_id/:viewport/:actor_id")
		board.Use(middlewares.ViewportAccess())
		{
			board.GET("/orders", orderCtrl.ListOrders)
			board.PATCH("/orders/:order_id", orderCtrl.UpdateOrderStatus)
		}
	}

	return r
}
