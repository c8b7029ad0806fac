package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
	"gorm.io/gorm"
)

type MenuController struct {
	DB *gorm.DB
}

func NewMenuController(db *gorm.DB) *MenuController {
	return &MenuController{DB: db}
}

// ListMenu -> menu restoran beserta opsi, dipakai kiosk customer
func (mc *MenuController) ListMenu(c *gin.Context) {
	restaurantID, err := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid restaurant_id"))
		return
	}

	items := []models.MenuItem{}
	err = mc.DB.Preload("Options").
		Where("restaurant_id = ?", restaurantID).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menus", items)
}

// CreateMenuItem -> item baru + opsi (admin)
func (mc *MenuController) CreateMenuItem(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	restaurantID, err := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid restaurant_id"))
		return
	}

	var req struct {
		Name    string          `json:"name" binding:"required"`
		Price   decimal.Decimal `json:"price"`
		Image   string          `json:"image"`
		Options []struct {
			Name  string          `json:"name" binding:"required"`
			Price decimal.Decimal `json:"price"`
		} `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Price.IsNegative() {
		utils.RespondError(c, http.StatusBadRequest, errors.New("price must not be negative"))
		return
	}

	item := models.MenuItem{
		RestaurantID: uint(restaurantID),
		Name:         req.Name,
		Price:        req.Price,
		Image:        req.Image,
	}
	for _, opt := range req.Options {
		if opt.Price.IsNegative() {
			utils.RespondError(c, http.StatusBadRequest, errors.New("option price must not be negative"))
			return
		}
		item.Options = append(item.Options, models.MenuOption{Name: opt.Name, Price: opt.Price})
	}

	err = mc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.Restaurant{}, restaurantID).Error; err != nil {
			return err
		}
		return tx.Create(&item).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.RespondError(c, http.StatusNotFound, errBadRestaurant)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("New menu item created: %s (%s)", item.Name, utils.FormatPrice(item.Price))
	utils.RespondJSON(c, http.StatusCreated, "Menu created successfully", item)
}
