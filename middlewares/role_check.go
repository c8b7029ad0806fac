package middlewares

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// ViewportAccess guards /restaurants/:restaurant_id/:viewport/:actor_id routes.
// Operators only see their own restaurant, through the viewport of their
// role, as themselves. Admins see everything.
func ViewportAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if role == "" {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		viewport := models.Viewport(c.Param("viewport"))
		if viewport != models.ViewportKitchen && viewport != models.ViewportCashier {
			utils.RespondError(c, http.StatusNotFound, fmt.Errorf("unknown viewport %q", viewport))
			c.Abort()
			return
		}
		if role == models.RoleAdmin {
			c.Next()
			return
		}

		if role != string(viewport) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", viewport))
			c.Abort()
			return
		}
		restaurantID, _ := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
		if uint(restaurantID) != c.GetUint(CtxRestaurantID) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("not a member of restaurant %s", c.Param("restaurant_id")))
			c.Abort()
			return
		}
		actorID, _ := strconv.ParseUint(c.Param("actor_id"), 10, 64)
		if uint(actorID) != c.GetUint(CtxUserID) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("actor does not match token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
