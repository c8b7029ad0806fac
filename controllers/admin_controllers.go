package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-relay/middlewares"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
	"gorm.io/gorm"
)

type AdminController struct {
	DB *gorm.DB
}

func NewAdminController(db *gorm.DB) *AdminController {
	return &AdminController{DB: db}
}

// requireAdmin responds 403 and returns false for non-admin callers.
func requireAdmin(c *gin.Context) bool {
	if c.GetString(middlewares.CtxRole) != models.RoleAdmin {
		utils.InfoLogger.Printf("Unauthorized role access attempt: %s", c.GetString(middlewares.CtxRole))
		utils.RespondError(c, http.StatusForbidden, ErrNoPermission)
		return false
	}
	return true
}

// CreateRestaurant -> tenant baru, langganan aktif by default
func (ac *AdminController) CreateRestaurant(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req struct {
		Name               string     `json:"name" binding:"required"`
		SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	restaurant := models.Restaurant{
		Name:               req.Name,
		SubscriptionActive: true,
		SubscriptionEndsAt: req.SubscriptionEndsAt,
	}
	if err := ac.DB.Create(&restaurant).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.InfoLogger.Printf("Restaurant created: %s (id=%d)", restaurant.Name, restaurant.ID)
	utils.RespondJSON(c, http.StatusCreated, "Restaurant created", restaurant)
}

// UpdateSubscription -> aktifkan / matikan langganan restoran
func (ac *AdminController) UpdateSubscription(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req struct {
		Active             *bool      `json:"active" binding:"required"`
		SubscriptionEndsAt *time.Time `json:"subscription_ends_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var restaurant models.Restaurant
	if err := ac.DB.First(&restaurant, c.Param("restaurant_id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, errBadRestaurant)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	restaurant.SubscriptionActive = *req.Active
	restaurant.SubscriptionEndsAt = req.SubscriptionEndsAt
	if err := ac.DB.Save(&restaurant).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.InfoLogger.Printf("Subscription of restaurant %d set to active=%t", restaurant.ID, restaurant.SubscriptionActive)
	utils.RespondJSON(c, http.StatusOK, "Subscription updated", restaurant)
}

// GetOrderStats -> jumlah order per status untuk dashboard admin
func (ac *AdminController) GetOrderStats(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	restaurantID, err := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid restaurant_id"))
		return
	}

	var rows []struct {
		Status models.Status
		Count  int64
	}
	err = ac.DB.Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Where("restaurant_id = ?", restaurantID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	stats := make(map[models.Status]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	utils.RespondJSON(c, http.StatusOK, "Order stats", stats)
}
