package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/middlewares"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

var (
	errBadRestaurant = errors.New("restaurant not found")
	errBadTable      = errors.New("table does not belong to this restaurant")
)

type OrderController struct {
	DB        *gorm.DB
	Publisher kds.Publisher
	now       func() time.Time
}

func NewOrderController(db *gorm.DB, publisher kds.Publisher) *OrderController {
	return &OrderController{DB: db, Publisher: publisher, now: time.Now}
}

func (oc *OrderController) withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("Table").Preload("OrderItems.Item").Preload("OrderItems.Options")
}

func (oc *OrderController) loadRestaurant(c *gin.Context) (models.Restaurant, bool) {
	id, err := strconv.ParseUint(c.Param("restaurant_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid restaurant_id"))
		return models.Restaurant{}, false
	}
	var restaurant models.Restaurant
	if err := oc.DB.First(&restaurant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, errBadRestaurant)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return models.Restaurant{}, false
	}
	return restaurant, true
}

// ListOrders -> snapshot order aktif untuk viewport kitchen/cashier
func (oc *OrderController) ListOrders(c *gin.Context) {
	restaurant, ok := oc.loadRestaurant(c)
	if !ok {
		return
	}
	viewport := models.Viewport(c.Param("viewport"))

	// taken before the query so clients keep anything that changed meanwhile
	generatedAt := oc.now()
	if !restaurant.Active(generatedAt) {
		utils.RespondJSON(c, http.StatusOK, "Subscription expired", models.Snapshot{
			Active:      false,
			Orders:      []models.Order{},
			GeneratedAt: generatedAt,
		})
		return
	}

	orders := []models.Order{}
	err := oc.withDetails(oc.DB).
		Where("restaurant_id = ? AND status IN ?", restaurant.ID, viewport.VisibleStatuses()).
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "List of orders", models.Snapshot{
		Active:      true,
		Orders:      orders,
		GeneratedAt: generatedAt,
	})
}

// UpdateOrderStatus -> ubah status order lalu broadcast order_updated
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	restaurant, ok := oc.loadRestaurant(c)
	if !ok {
		return
	}
	if !restaurant.Active(oc.now()) {
		utils.RespondError(c, http.StatusPaymentRequired, models.ErrSubscriptionExpired)
		return
	}

	var req struct {
		Status models.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !req.Status.Valid() {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("unknown status %q", req.Status))
		return
	}

	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}
	var order models.Order
	err = oc.DB.Where("restaurant_id = ?", restaurant.ID).First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, models.ErrOrderNotFound)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	viewport := models.Viewport(c.Param("viewport"))
	allowed := viewport.Allows(order.Status, req.Status)
	if c.GetString(middlewares.CtxRole) == models.RoleAdmin {
		allowed = models.CanTransition(order.Status, req.Status)
	}
	if !allowed {
		utils.RespondError(c, http.StatusUnprocessableEntity,
			fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, req.Status))
		return
	}

	err = oc.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(map[string]interface{}{"status": req.Status, "updated_at": oc.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// someone else moved the order first
			return models.ErrInvalidTransition
		}
		return nil
	})
	if errors.Is(err, models.ErrInvalidTransition) {
		utils.RespondError(c, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := oc.withDetails(oc.DB).First(&order, order.ID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"actor":    c.Param("actor_id"),
		"viewport": viewport,
	}).Info("Order status updated")

	msg, err := kds.OrderUpdatedMessage(order)
	oc.publish(c.Request.Context(), msg, err)

	utils.RespondJSON(c, http.StatusOK, "Order updated", order)
}

// CreateOrder -> order baru dari customer, total dihitung ulang dari harga menu
func (oc *OrderController) CreateOrder(c *gin.Context) {
	restaurant, ok := oc.loadRestaurant(c)
	if !ok {
		return
	}
	if !restaurant.Active(oc.now()) {
		utils.RespondError(c, http.StatusPaymentRequired, models.ErrSubscriptionExpired)
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Items) == 0 {
		utils.RespondError(c, http.StatusBadRequest, models.ErrEmptyOrder)
		return
	}

	order, err := oc.buildOrder(restaurant.ID, req)
	switch {
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, errBadTable), errors.Is(err, gorm.ErrRecordNotFound):
		utils.RespondError(c, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if req.TotalPrice != "" {
		if claimed, err := decimal.NewFromString(req.TotalPrice); err == nil && !claimed.Equal(order.TotalPrice) {
			utils.InfoLogger.WithFields(logrus.Fields{
				"claimed":  claimed.StringFixed(2),
				"computed": order.TotalPrice.StringFixed(2),
			}).Warn("Client total differs from menu prices, using computed total")
		}
	}

	if err := oc.DB.Create(&order).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := oc.withDetails(oc.DB).First(&order, order.ID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":      order.ID,
		"restaurant_id": order.RestaurantID,
		"total":         utils.FormatPrice(order.TotalPrice),
	}).Info("Order created")

	msg, err := kds.NewOrderMessage(order)
	oc.publish(c.Request.Context(), msg, err)

	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

func (oc *OrderController) buildOrder(restaurantID uint, req models.CreateOrderRequest) (models.Order, error) {
	order := models.Order{
		RestaurantID: restaurantID,
		Status:       models.StatusPending,
		OrderItems:   make([]models.OrderItem, 0, len(req.Items)),
	}

	if req.TableID != nil {
		var table models.Table
		if err := oc.DB.Where("restaurant_id = ?", restaurantID).First(&table, *req.TableID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order, errBadTable
			}
			return order, err
		}
		order.TableID = &table.ID
	}

	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return order, fmt.Errorf("item %d: %w", line.ItemID, models.ErrInvalidQuantity)
		}
		var item models.MenuItem
		if err := oc.DB.Where("restaurant_id = ?", restaurantID).First(&item, line.ItemID).Error; err != nil {
			return order, fmt.Errorf("menu item %d: %w", line.ItemID, err)
		}

		options := []models.MenuOption{}
		if len(line.Options) > 0 {
			if err := oc.DB.Where("menu_item_id = ? AND id IN ?", item.ID, line.Options).Find(&options).Error; err != nil {
				return order, err
			}
			if len(options) != len(uniqueIDs(line.Options)) {
				return order, fmt.Errorf("options of item %d: %w", item.ID, gorm.ErrRecordNotFound)
			}
		}

		order.OrderItems = append(order.OrderItems, models.OrderItem{
			ItemID:   item.ID,
			Price:    item.Price,
			Quantity: line.Quantity,
			Comment:  line.Comment,
			Options:  options,
		})
	}
	order.TotalPrice = order.ComputeTotal()
	return order, nil
}

// GetOrderByID -> detail 1 order, dipakai customer untuk polling
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}

	var order models.Order
	if err := oc.withDetails(oc.DB).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.RespondError(c, http.StatusNotFound, models.ErrOrderNotFound)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// publish never fails the request: the order is stored, boards catch up by polling.
func (oc *OrderController) publish(ctx context.Context, msg kds.Message, err error) {
	if err == nil && oc.Publisher != nil {
		err = oc.Publisher.Publish(ctx, msg)
	}
	if err != nil {
		utils.ErrorLogger.WithField("event", msg.Event).Errorf("Broadcast failed: %v", err)
	}
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
