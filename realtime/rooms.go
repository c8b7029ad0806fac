package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/utils"
)

type membership struct {
	event    string
	payload  interface{}
	onJoined func(room string)
	// sentOn is the connection the join was last emitted on.
	sentOn uint64
}

// RoomManager keeps the set of rooms a client wants to be in and re-joins
// them after every reconnection; the server forgets memberships when a
// connection drops.
type RoomManager struct {
	ch *Channel

	mu    sync.Mutex
	rooms map[string]*membership
	order []string

	connSub *Subscription
}

func NewRoomManager(ch *Channel) *RoomManager {
	rm := &RoomManager{
		ch:    ch,
		rooms: make(map[string]*membership),
	}
	rm.connSub = ch.OnConnect(rm.rejoinAll)
	return rm
}

// JoinKitchen joins kitchen:<restaurantID>.
func (rm *RoomManager) JoinKitchen(restaurantID uint, onJoined func(room string)) {
	rm.join(kds.KitchenRoom(restaurantID), kds.EventJoinKitchen, kds.JoinRestaurant{RestaurantID: restaurantID}, onJoined)
}

// JoinCashier joins cashier:<restaurantID>.
func (rm *RoomManager) JoinCashier(restaurantID uint, onJoined func(room string)) {
	rm.join(kds.CashierRoom(restaurantID), kds.EventJoinCashier, kds.JoinRestaurant{RestaurantID: restaurantID}, onJoined)
}

// JoinOrder joins order:<orderID>.
func (rm *RoomManager) JoinOrder(orderID uint, onJoined func(room string)) {
	rm.join(kds.OrderRoom(orderID), kds.EventJoinOrder, kds.JoinOrder{OrderID: orderID}, onJoined)
}

// Join joins a room by name, e.g. "order:12".
func (rm *RoomManager) Join(room string, onJoined func(room string)) error {
	scope, id, err := kds.ParseRoom(room)
	if err != nil {
		return err
	}
	switch scope {
	case kds.ScopeKitchen:
		rm.JoinKitchen(id, onJoined)
	case kds.ScopeCashier:
		rm.JoinCashier(id, onJoined)
	default:
		rm.JoinOrder(id, onJoined)
	}
	return nil
}

// join records the room and emits the join right away when connected;
// otherwise the next connection takes care of it. Joining a known room
// replaces its callback and emits again.
func (rm *RoomManager) join(room, event string, payload interface{}, onJoined func(string)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, ok := rm.rooms[room]
	if !ok {
		m = &membership{}
		rm.rooms[room] = m
		rm.order = append(rm.order, room)
	}
	m.event, m.payload, m.onJoined = event, payload, onJoined
	m.sentOn = 0

	if connID := rm.ch.ConnectionID(); connID != 0 {
		rm.emitLocked(room, m, connID)
	}
}

// Leave forgets the room and tells the server when connected.
func (rm *RoomManager) Leave(room string) {
	rm.mu.Lock()
	_, ok := rm.rooms[room]
	delete(rm.rooms, room)
	for i, r := range rm.order {
		if r == room {
			rm.order = append(rm.order[:i:i], rm.order[i+1:]...)
			break
		}
	}
	rm.mu.Unlock()

	if ok && rm.ch.Connected() {
		if err := rm.ch.Emit(kds.EventLeave, kds.LeaveRoom{Room: room}, nil); err != nil {
			utils.ErrorLogger.Warnf("Leave %s failed: %v", room, err)
		}
	}
}

// Rooms lists wanted rooms in join order.
func (rm *RoomManager) Rooms() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return append([]string(nil), rm.order...)
}

// Close stops re-joining on reconnect.
func (rm *RoomManager) Close() {
	rm.connSub.Unsubscribe()
}

func (rm *RoomManager) rejoinAll() {
	connID := rm.ch.ConnectionID()
	if connID == 0 {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, room := range rm.order {
		if m := rm.rooms[room]; m.sentOn != connID {
			rm.emitLocked(room, m, connID)
		}
	}
}

func (rm *RoomManager) emitLocked(room string, m *membership, connID uint64) {
	onJoined := m.onJoined
	err := rm.ch.Emit(m.event, m.payload, func(data json.RawMessage) {
		var ack kds.JoinAck
		if err := json.Unmarshal(data, &ack); err != nil {
			utils.ErrorLogger.Warnf("Malformed join ack for %s: %v", room, err)
			return
		}
		if ack.Error != "" {
			utils.ErrorLogger.WithFields(logrus.Fields{"room": room}).Errorf("Join rejected: %s", ack.Error)
			return
		}
		utils.InfoLogger.WithFields(logrus.Fields{"room": ack.Room}).Info("Joined room")
		if onJoined != nil {
			onJoined(ack.Room)
		}
	})
	if err != nil {
		utils.ErrorLogger.Warnf("Join %s failed: %v", room, err)
		return
	}
	m.sentOn = connID
}
