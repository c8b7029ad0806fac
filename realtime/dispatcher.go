package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// Handler receives the raw data of an event.
type Handler func(data json.RawMessage)

// Dispatcher routes incoming events to the handlers registered for their name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]*Subscription
	nextID   uint64
}

// Subscription is the handle returned by On. Unsubscribe must be called when
// the owner goes away.
type Subscription struct {
	d       *Dispatcher
	event   string
	id      uint64
	handler Handler
	once    sync.Once
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]*Subscription)}
}

// On registers a handler. Handlers for the same event run in registration order.
func (d *Dispatcher) On(event string, h Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	s := &Subscription{d: d, event: event, id: d.nextID, handler: h}
	d.handlers[event] = append(d.handlers[event], s)
	return s
}

// Unsubscribe removes the handler. Safe to call more than once and on nil.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.d.remove(s)
	})
}

func (d *Dispatcher) remove(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[s.event]
	for i, existing := range subs {
		if existing.id == s.id {
			d.handlers[s.event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.handlers[s.event]) == 0 {
		delete(d.handlers, s.event)
	}
}

// Off drops every handler registered for the event.
func (d *Dispatcher) Off(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, event)
}

// Count returns the number of handlers registered for the event.
func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

// Dispatch invokes the handlers of the event and returns how many ran.
// A panicking handler is logged and does not stop the others.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) int {
	d.mu.RLock()
	subs := append([]*Subscription(nil), d.handlers[event]...)
	d.mu.RUnlock()

	for _, s := range subs {
		d.invoke(s, data)
	}
	return len(subs)
}

func (d *Dispatcher) invoke(s *Subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"event": s.event,
				"panic": r,
			}).Error("Event handler panicked")
		}
	}()
	s.handler(data)
}

// OnNewOrder registers a handler for new_order. Payloads without an id are dropped.
func (d *Dispatcher) OnNewOrder(fn func(models.Order)) *Subscription {
	return d.On(kds.EventNewOrder, func(data json.RawMessage) {
		var order models.Order
		if err := json.Unmarshal(data, &order); err != nil || order.ID == 0 {
			utils.ErrorLogger.Warnf("Dropping malformed %s payload: %s", kds.EventNewOrder, string(data))
			return
		}
		fn(order)
	})
}

// OnOrderUpdated registers a handler for order_updated.
func (d *Dispatcher) OnOrderUpdated(fn func(models.StatusUpdate)) *Subscription {
	return d.On(kds.EventOrderUpdated, func(data json.RawMessage) {
		var update models.StatusUpdate
		if err := json.Unmarshal(data, &update); err != nil || update.OrderID == 0 || !update.Status.Valid() {
			utils.ErrorLogger.Warnf("Dropping malformed %s payload: %s", kds.EventOrderUpdated, string(data))
			return
		}
		fn(update)
	})
}
