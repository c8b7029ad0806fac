package controllers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yeremiapane/order-relay/controllers"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

func seedUser(t *testing.T, db *gorm.DB, email, password, role string, restaurantID uint) models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Name: "Op", Email: email, Password: string(hashed), Role: role, RestaurantID: restaurantID}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func TestLogin_IssuesRestaurantScopedToken(t *testing.T) {
	db, s := setupTestDB(t)
	user := seedUser(t, db, "chef@warung.test", "rahasia", "Kitchen", s.active.ID)

	r := gin.New()
	r.POST("/login", controllers.NewUserController(db).Login)

	w, env := doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "chef@warung.test", "password": "rahasia"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token    string `json:"token"`
		UserRole string `json:"user_role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, models.RoleKitchen, data.UserRole)

	claims, err := utils.ParseToken(data.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleKitchen, claims.Role)
	assert.Equal(t, s.active.ID, claims.RestaurantID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	db, s := setupTestDB(t)
	seedUser(t, db, "cashier@warung.test", "rahasia", models.RoleCashier, s.active.ID)

	r := gin.New()
	r.POST("/login", controllers.NewUserController(db).Login)

	w, _ := doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "cashier@warung.test", "password": "salah"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "nobody@warung.test", "password": "rahasia"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/login", map[string]string{"email": "cashier@warung.test"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_AdminOnly(t *testing.T) {
	db, s := setupTestDB(t)
	uc := controllers.NewUserController(db)
	body := map[string]interface{}{
		"name":          "Kasir",
		"email":         "kasir@warung.test",
		"password":      "rahasia",
		"role":          "cashier",
		"restaurant_id": s.active.ID,
	}

	r := gin.New()
	r.POST("/users", identity(models.RoleKitchen, 9, s.active.ID), uc.Register)
	w, _ := doJSON(t, r, http.MethodPost, "/users", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = gin.New()
	r.POST("/users", identity(models.RoleAdmin, 1, 0), uc.Register)
	w, _ = doJSON(t, r, http.MethodPost, "/users", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var stored models.User
	require.NoError(t, db.Where("email = ?", "kasir@warung.test").First(&stored).Error)
	assert.Equal(t, s.active.ID, stored.RestaurantID)
	assert.NotEqual(t, "rahasia", stored.Password)

	body["email"] = "lost@warung.test"
	delete(body, "restaurant_id")
	w, _ = doJSON(t, r, http.MethodPost, "/users", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_SubscriptionAndCatalogue(t *testing.T) {
	db, s := setupTestDB(t)
	admin := identity(models.RoleAdmin, 1, 0)

	r := gin.New()
	ac := controllers.NewAdminController(db)
	mc := controllers.NewMenuController(db)
	tc := controllers.NewTableController(db)
	r.PATCH("/restaurants/:restaurant_id/subscription", admin, ac.UpdateSubscription)
	r.POST("/restaurants/:restaurant_id/menu", admin, mc.CreateMenuItem)
	r.GET("/restaurants/:restaurant_id/menu", mc.ListMenu)
	r.POST("/restaurants/:restaurant_id/tables", admin, tc.CreateTable)
	r.GET("/restaurants/:restaurant_id/tables", tc.ListTables)

	w, _ := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/restaurants/%d/subscription", s.expired.ID), map[string]bool{"active": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var restaurant models.Restaurant
	require.NoError(t, db.First(&restaurant, s.expired.ID).Error)
	assert.True(t, restaurant.SubscriptionActive)

	w, _ = doJSON(t, r, http.MethodPost, fmt.Sprintf("/restaurants/%d/menu", s.active.ID), map[string]interface{}{
		"name":    "Es Teh",
		"price":   "8.50",
		"options": []map[string]string{{"name": "Less sugar", "price": "0"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := doJSON(t, r, http.MethodGet, fmt.Sprintf("/restaurants/%d/menu", s.active.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var menu []models.MenuItem
	require.NoError(t, json.Unmarshal(env.Data, &menu))
	require.Len(t, menu, 3)
	// sorted by name
	assert.Equal(t, "Burger", menu[0].Name)
	assert.Equal(t, "Es Teh", menu[1].Name)
	assert.True(t, decimal.RequireFromString("8.5").Equal(menu[1].Price))
	assert.Len(t, menu[1].Options, 1)

	w, _ = doJSON(t, r, http.MethodPost, fmt.Sprintf("/restaurants/%d/tables", s.active.ID), map[string]string{"name": "A2"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = doJSON(t, r, http.MethodPost, "/restaurants/999/tables", map[string]string{"name": "Z9"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = doJSON(t, r, http.MethodGet, fmt.Sprintf("/restaurants/%d/tables", s.active.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tables []models.Table
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	assert.Len(t, tables, 2)
}
