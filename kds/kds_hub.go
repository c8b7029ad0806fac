package kds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

var (
	ErrForbiddenRoom = errors.New("not allowed to join this room")
	ErrHubClosed     = errors.New("hub closed")
)

// Message is an event addressed to one or more rooms.
type Message struct {
	Event string          `json:"event"`
	Rooms []string        `json:"rooms"`
	Data  json.RawMessage `json:"data"`
}

// Publisher delivers messages to room members, locally or through a broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NewOrderMessage -> order baru untuk dapur dan kasir restoran
func NewOrderMessage(order models.Order) (Message, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Event: EventNewOrder,
		Rooms: []string{KitchenRoom(order.RestaurantID), CashierRoom(order.RestaurantID)},
		Data:  data,
	}, nil
}

// OrderUpdatedMessage -> perubahan status untuk dapur, kasir dan customer pemilik order
func OrderUpdatedMessage(order models.Order) (Message, error) {
	data, err := json.Marshal(models.StatusUpdate{
		OrderID:   order.ID,
		Status:    order.Status,
		UpdatedAt: order.UpdatedAt,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Event: EventOrderUpdated,
		Rooms: []string{
			KitchenRoom(order.RestaurantID),
			CashierRoom(order.RestaurantID),
			OrderRoom(order.ID),
		},
		Data: data,
	}, nil
}

// Hub menampung semua client KDS (kitchen, cashier, customer) beserta room-nya
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register -> menambahkan connection ke hub
func (h *Hub) Register(conn *websocket.Conn, role string, restaurantID uint) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	c := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		rooms:        make(map[string]struct{}),
		Role:         role,
		RestaurantID: restaurantID,
	}
	h.clients[c] = struct{}{}
	return c, nil
}

// Unregister -> melepaskan connection dari hub dan semua room
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
}

// Join adds the client to a room after checking it may listen there.
// Joining a room twice is harmless.
func (h *Hub) Join(c *Client, scope string, id uint) (string, error) {
	if !c.canJoin(scope, id) {
		return "", ErrForbiddenRoom
	}
	room := Room(scope, id)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return "", ErrHubClosed
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return room, nil
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish sends the message to every member of its rooms, once per client.
// Clients whose queue is full are dropped; they will reconnect and resync.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	frame, err := json.Marshal(Envelope{Event: msg.Event, Data: msg.Data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	targets := make(map[*Client]struct{})
	for _, room := range msg.Rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}

	for c := range targets {
		select {
		case c.send <- frame:
		default:
			utils.ErrorLogger.WithFields(logrus.Fields{
				"event": msg.Event,
				"role":  c.Role,
			}).Warn("Client send queue full, dropping client")
			h.unregisterLocked(c)
		}
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"event":   msg.Event,
		"rooms":   msg.Rooms,
		"clients": len(targets),
	}).Debug("Broadcast message")
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// DisconnectAll closes every client connection; clients are expected to reconnect.
func (h *Hub) DisconnectAll() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Close stops accepting clients and disconnects the current ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.DisconnectAll()
}
