package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// OrderAPI is the REST surface of the relay used by boards and customer sessions.
type OrderAPI interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
	UpdateStatus(ctx context.Context, orderID uint, status models.Status) (models.Order, error)
	GetOrder(ctx context.Context, orderID uint) (models.Order, error)
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error)
}

// APIError is a non-2xx answer from the relay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well known status codes to the model's sentinel errors.
// A 403 is a permission problem and stays unmapped.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusPaymentRequired:
		return models.ErrSubscriptionExpired
	case http.StatusNotFound:
		return models.ErrOrderNotFound
	case http.StatusUnprocessableEntity:
		return models.ErrInvalidTransition
	}
	return nil
}

// HTTPOrderAPI talks to the relay REST endpoints.
type HTTPOrderAPI struct {
	baseURL      string
	restaurantID uint
	viewport     models.Viewport
	actorID      uint
	token        string
	httpClient   *http.Client
}

func NewHTTPOrderAPI(baseURL string, restaurantID uint, viewport models.Viewport, actorID uint, token string, timeout time.Duration) *HTTPOrderAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPOrderAPI{
		baseURL:      strings.TrimRight(baseURL, "/"),
		restaurantID: restaurantID,
		viewport:     viewport,
		actorID:      actorID,
		token:        token,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPOrderAPI) ordersPath() string {
	return fmt.Sprintf("%s/api/restaurants/%d/%s/%d/orders", c.baseURL, c.restaurantID, c.viewport, c.actorID)
}

// Snapshot fetches the active order list. A bare JSON array is accepted as
// an active snapshot.
func (c *HTTPOrderAPI) Snapshot(ctx context.Context) (models.Snapshot, error) {
	data, err := c.do(ctx, http.MethodGet, c.ordersPath(), nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch orders: %w", err)
	}
	return decodeSnapshot(data)
}

func (c *HTTPOrderAPI) UpdateStatus(ctx context.Context, orderID uint, status models.Status) (models.Order, error) {
	body := map[string]models.Status{"status": status}
	data, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/%d", c.ordersPath(), orderID), body)
	if err != nil {
		return models.Order{}, fmt.Errorf("update order %d: %w", orderID, err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return models.Order{}, fmt.Errorf("decode order %d: %w", orderID, err)
	}
	return order, nil
}

func (c *HTTPOrderAPI) GetOrder(ctx context.Context, orderID uint) (models.Order, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/api/orders/%d", c.baseURL, orderID), nil)
	if err != nil {
		return models.Order{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return models.Order{}, fmt.Errorf("decode order %d: %w", orderID, err)
	}
	return order, nil
}

func (c *HTTPOrderAPI) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/restaurants/%d/orders", c.baseURL, req.RestaurantID), req)
	if err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return models.Order{}, fmt.Errorf("decode created order: %w", err)
	}
	if order.ID == 0 {
		return models.Order{}, errors.New("create order: response has no id")
	}
	return order, nil
}

// do sends the request and returns the data of the response envelope.
func (c *HTTPOrderAPI) do(ctx context.Context, method, url string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.Debugf("%s %s -> %d (%s)", method, url, resp.StatusCode, time.Since(start))

	return unwrapEnvelope(resp.StatusCode, raw)
}

func unwrapEnvelope(statusCode int, raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	var env utils.RawResponse
	isEnvelope := len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &env) == nil && (env.Message != "" || env.Data != nil)

	if statusCode < 200 || statusCode >= 300 {
		apiErr := &APIError{StatusCode: statusCode}
		if isEnvelope {
			apiErr.Message = env.Message
		}
		return nil, apiErr
	}
	if isEnvelope {
		return env.Data, nil
	}
	return json.RawMessage(trimmed), nil
}

func decodeSnapshot(data json.RawMessage) (models.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var orders []models.Order
		if err := json.Unmarshal(trimmed, &orders); err != nil {
			return models.Snapshot{}, fmt.Errorf("decode orders: %w", err)
		}
		return models.Snapshot{Active: true, Orders: orders}, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
