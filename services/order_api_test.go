package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

func newAPI(t *testing.T, handler http.HandlerFunc) *HTTPOrderAPI {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPOrderAPI(srv.URL, 3, models.ViewportKitchen, 8, "secret-token", time.Second)
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(utils.JSONResponse{Status: code < 300, Message: message, Data: data})
}

func TestHTTPOrderAPI_Snapshot(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/restaurants/3/kitchen/8/orders", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, "ok", models.Snapshot{
			Active: true,
			Orders: []models.Order{{ID: 4, Status: models.StatusPending}},
		})
	})

	snap, err := api.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Active)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, uint(4), snap.Orders[0].ID)
}

func TestHTTPOrderAPI_SnapshotBareArray(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"status":"pending"},{"id":2,"status":"in_progress"}]`))
	})

	snap, err := api.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Len(t, snap.Orders, 2)
}

func TestHTTPOrderAPI_SnapshotInactive(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"active":false}`))
	})

	snap, err := api.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Active)
}

func TestHTTPOrderAPI_ErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusPaymentRequired, models.ErrSubscriptionExpired},
		{http.StatusNotFound, models.ErrOrderNotFound},
		{http.StatusUnprocessableEntity, models.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.code, "nope", nil)
			})
			_, err := api.UpdateStatus(context.Background(), 1, models.StatusReady)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestHTTPOrderAPI_ForbiddenIsNotExpiry(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusForbidden, "actor does not match token", nil)
	})
	_, err := api.UpdateStatus(context.Background(), 1, models.StatusReady)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrSubscriptionExpired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestHTTPOrderAPI_UpdateStatus(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/restaurants/3/kitchen/8/orders/12", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"in_progress"}`, string(body))
		writeEnvelope(w, http.StatusOK, "updated", models.Order{ID: 12, Status: models.StatusInProgress})
	})

	o, err := api.UpdateStatus(context.Background(), 12, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, o.Status)
}

func TestHTTPOrderAPI_CreateAndGet(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/restaurants/3/orders":
			var req models.CreateOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "110.00", req.TotalPrice)
			writeEnvelope(w, http.StatusCreated, "created", models.Order{ID: 77, Status: models.StatusPending, TotalPrice: decimal.NewFromInt(110)})
		case r.Method == http.MethodGet && r.URL.Path == "/api/orders/77":
			writeEnvelope(w, http.StatusOK, "ok", models.Order{ID: 77, Status: models.StatusReady})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})

	created, err := api.CreateOrder(context.Background(), models.CreateOrderRequest{RestaurantID: 3, TotalPrice: "110.00"})
	require.NoError(t, err)
	assert.Equal(t, uint(77), created.ID)

	got, err := api.GetOrder(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
}
