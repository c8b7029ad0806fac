package kds

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Event names spoken over the websocket.
const (
	EventNewOrder     = "new_order"
	EventOrderUpdated = "order_updated"

	EventJoinKitchen = "joinKitchen"
	EventJoinCashier = "joinCashier"
	EventJoinOrder   = "joinOrder"
	EventLeave       = "leave"

	// EventAck answers a client message that carried an ack id.
	EventAck = "ack"
)

// Room scopes
const (
	ScopeKitchen = "kitchen"
	ScopeCashier = "cashier"
	ScopeOrder   = "order"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

type JoinRestaurant struct {
	RestaurantID uint `json:"restaurant_id"`
}

type JoinOrder struct {
	OrderID uint `json:"order_id"`
}

type LeaveRoom struct {
	Room string `json:"room"`
}

// JoinAck is the data of an ack frame answering a join.
type JoinAck struct {
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

func Room(scope string, id uint) string {
	return fmt.Sprintf("%s:%d", scope, id)
}

func KitchenRoom(restaurantID uint) string { return Room(ScopeKitchen, restaurantID) }
func CashierRoom(restaurantID uint) string { return Room(ScopeCashier, restaurantID) }
func OrderRoom(orderID uint) string        { return Room(ScopeOrder, orderID) }

var ErrBadRoom = errors.New("malformed room name")

// ParseRoom splits "<scope>:<id>".
func ParseRoom(room string) (scope string, id uint, err error) {
	scope, raw, ok := strings.Cut(room, ":")
	if !ok {
		return "", 0, ErrBadRoom
	}
	switch scope {
	case ScopeKitchen, ScopeCashier, ScopeOrder:
	default:
		return "", 0, ErrBadRoom
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return "", 0, ErrBadRoom
	}
	return scope, uint(n), nil
}
