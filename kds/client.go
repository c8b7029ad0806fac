package kds

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket connection registered in the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// rooms is guarded by hub.mu
	rooms map[string]struct{}

	Role         string
	RestaurantID uint
}

func (c *Client) canJoin(scope string, id uint) bool {
	switch scope {
	case ScopeOrder:
		return id != 0
	case ScopeKitchen:
		return c.staffOf(id, models.RoleKitchen)
	case ScopeCashier:
		return c.staffOf(id, models.RoleCashier)
	}
	return false
}

func (c *Client) staffOf(restaurantID uint, role string) bool {
	if restaurantID == 0 {
		return false
	}
	if c.Role == models.RoleAdmin {
		return true
	}
	return c.Role == role && c.RestaurantID == restaurantID
}

// Serve runs the client until the connection drops.
func (h *Hub) Serve(conn *websocket.Conn, role string, restaurantID uint) {
	c, err := h.Register(conn, role, restaurantID)
	if err != nil {
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.ErrorLogger.Warnf("KDS client read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			utils.ErrorLogger.Warnf("KDS client sent malformed frame: %v", err)
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env Envelope) {
	var (
		scope string
		id    uint
	)
	switch env.Event {
	case EventJoinKitchen, EventJoinCashier:
		var req JoinRestaurant
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.ack(env.Ack, JoinAck{Error: "invalid payload"})
			return
		}
		scope, id = ScopeKitchen, req.RestaurantID
		if env.Event == EventJoinCashier {
			scope = ScopeCashier
		}
	case EventJoinOrder:
		var req JoinOrder
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.ack(env.Ack, JoinAck{Error: "invalid payload"})
			return
		}
		scope, id = ScopeOrder, req.OrderID
	case EventLeave:
		var req LeaveRoom
		if err := json.Unmarshal(env.Data, &req); err == nil {
			c.hub.Leave(c, req.Room)
		}
		c.ack(env.Ack, JoinAck{Room: req.Room})
		return
	default:
		utils.InfoLogger.Debugf("Ignoring client event %q", env.Event)
		return
	}

	room, err := c.hub.Join(c, scope, id)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"role":  c.Role,
			"scope": scope,
			"id":    id,
		}).Warn("Join rejected")
		c.ack(env.Ack, JoinAck{Error: err.Error()})
		return
	}
	utils.InfoLogger.WithFields(logrus.Fields{"role": c.Role, "room": room}).Info("Client joined room")
	c.ack(env.Ack, JoinAck{Room: room})
}

// ack replies to a client frame that asked for an acknowledgement.
func (c *Client) ack(id string, payload JoinAck) {
	if id == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Event: EventAck, Ack: id, Data: data})
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
