package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
	"gorm.io/gorm"
)

type TableController struct {
	DB *gorm.DB
}

func NewTableController(db *gorm.DB) *TableController {
	return &TableController{DB: db}
}

// CreateTable -> menambahkan meja baru (admin)
func (tc *TableController) CreateTable(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	restaurantID, err := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid restaurant_id"))
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := tc.DB.First(&models.Restaurant{}, restaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, errBadRestaurant)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	table := models.Table{RestaurantID: uint(restaurantID), Name: req.Name}
	if err := tc.DB.Create(&table).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("New table created: %s (restaurant=%d)", table.Name, table.RestaurantID)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// ListTables -> seluruh meja satu restoran
func (tc *TableController) ListTables(c *gin.Context) {
	tables := []models.Table{}
	if err := tc.DB.Where("restaurant_id = ?", c.Param("restaurant_id")).Order("name ASC").Find(&tables).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}
