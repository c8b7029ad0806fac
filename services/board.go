package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/realtime"
	"github.com/yeremiapane/order-relay/utils"
)

const subscriptionExpiredWarning = "Restaurant subscription expired, renew it to keep receiving orders"

// Board drives a kitchen or cashier display: it keeps the order list in
// sync from push events and polls, and carries out operator actions.
type Board struct {
	viewport     models.Viewport
	restaurantID uint

	api       OrderAPI
	ch        *realtime.Channel
	rooms     *realtime.RoomManager
	store     *OrderStore
	notifier  *Notifier
	presenter Presenter
	poller    *FallbackPoller

	mu        sync.Mutex
	ctx       context.Context
	joins     int
	handlers  []*realtime.Subscription
	lifecycle []*realtime.Subscription
	unobserve func()
	running   bool
}

// NewBoard wires a board for one restaurant. The board owns ch from Start to Stop.
func NewBoard(viewport models.Viewport, restaurantID uint, api OrderAPI, ch *realtime.Channel, notifier *Notifier, presenter Presenter, pollInterval time.Duration) (*Board, error) {
	if viewport != models.ViewportKitchen && viewport != models.ViewportCashier {
		return nil, fmt.Errorf("board viewport must be kitchen or cashier, got %q", viewport)
	}
	if notifier == nil {
		notifier = NewNotifier(nil, nil, nil)
	}
	if presenter == nil {
		presenter = LogPresenter{Name: string(viewport)}
	}
	b := &Board{
		viewport:     viewport,
		restaurantID: restaurantID,
		api:          api,
		ch:           ch,
		store:        NewOrderStore(viewport),
		notifier:     notifier,
		presenter:    presenter,
	}
	b.poller = NewFallbackPoller(pollInterval, b.pushHealthy, b.Refresh)
	return b, nil
}

func (b *Board) Store() *OrderStore {
	return b.store
}

func (b *Board) Notifier() *Notifier {
	return b.notifier
}

// Start loads the initial snapshot, connects and joins the viewport room.
// A failing initial load is reported but does not stop the board.
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.ctx = ctx
	b.joins = 0
	b.unobserve = b.store.OnChange(b.presenter.OrdersChanged)
	b.rooms = realtime.NewRoomManager(b.ch)
	b.lifecycle = []*realtime.Subscription{
		b.ch.OnConnect(func() { b.presenter.ConnectionChanged(true) }),
		b.ch.OnDisconnect(func() { b.presenter.ConnectionChanged(false) }),
	}
	b.mu.Unlock()

	if err := b.Refresh(ctx); err != nil && !errors.Is(err, models.ErrSubscriptionExpired) {
		utils.ErrorLogger.Warnf("Initial order load failed: %v", err)
	}

	switch b.viewport {
	case models.ViewportKitchen:
		b.rooms.JoinKitchen(b.restaurantID, b.bindHandlers)
	case models.ViewportCashier:
		b.rooms.JoinCashier(b.restaurantID, b.bindHandlers)
	}
	b.ch.Connect(ctx)
	b.poller.Start(ctx)

	utils.InfoLogger.WithFields(logrus.Fields{
		"viewport":      b.viewport,
		"restaurant_id": b.restaurantID,
	}).Info("Board started")
	return nil
}

// Stop tears down everything Start set up. Safe to call more than once.
func (b *Board) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	subs := append(b.handlers, b.lifecycle...)
	b.handlers, b.lifecycle = nil, nil
	unobserve, rooms := b.unobserve, b.rooms
	b.mu.Unlock()

	b.poller.Stop()
	for _, s := range subs {
		s.Unsubscribe()
	}
	if rooms != nil {
		rooms.Close()
	}
	b.ch.Disconnect()
	b.notifier.Close()
	if unobserve != nil {
		unobserve()
	}
}

// bindHandlers runs on every join acknowledgement. Previous handlers are
// disposed first so one event never reaches two copies of a handler.
// Every join after the first follows a reconnect, so the board resyncs to
// pick up whatever was pushed while it was away.
func (b *Board) bindHandlers(room string) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	for _, s := range b.handlers {
		s.Unsubscribe()
	}
	d := b.ch.Dispatcher()
	b.handlers = []*realtime.Subscription{
		d.OnNewOrder(b.handleNewOrder),
		d.OnOrderUpdated(b.handleOrderUpdated),
	}
	b.joins++
	rejoin, ctx := b.joins > 1, b.ctx
	b.mu.Unlock()

	utils.InfoLogger.WithField("room", room).Debug("Order handlers bound")
	if rejoin {
		if err := b.Refresh(ctx); err != nil {
			utils.ErrorLogger.WithField("room", room).Warnf("Resync after rejoin failed: %v", err)
		}
	}
}

// pushHealthy reports whether pushed events alone keep the store current.
// A suspended store only recovers through a snapshot.
func (b *Board) pushHealthy() bool {
	return b.ch.Connected() && !b.store.Suspended()
}

func (b *Board) handleNewOrder(o models.Order) {
	if o.RestaurantID != 0 && o.RestaurantID != b.restaurantID {
		return
	}
	change, err := b.store.ApplyOrder(o)
	if err != nil {
		utils.ErrorLogger.WithField("order_id", o.ID).Debugf("New order ignored: %v", err)
		return
	}
	if change != Inserted {
		return
	}
	if b.viewport == models.ViewportCashier {
		b.presenter.Toast(fmt.Sprintf("New order #%d", o.ID))
	}
	b.notifier.Notify(NewOrderAlert(o))
}

func (b *Board) handleOrderUpdated(u models.StatusUpdate) {
	before, held := b.store.Get(u.OrderID)
	change, err := b.store.ApplyStatus(u)
	if err != nil {
		utils.ErrorLogger.WithField("order_id", u.OrderID).Debugf("Order update ignored: %v", err)
		return
	}
	if b.viewport == models.ViewportCashier && held && change == Updated &&
		u.Status == models.StatusReady && before.Status != models.StatusReady {
		after, _ := b.store.Get(u.OrderID)
		b.notifier.Notify(ReadyToPayAlert(after))
	}
}

// Refresh pulls a snapshot and reconciles the store with it.
func (b *Board) Refresh(ctx context.Context) error {
	snap, err := b.api.Snapshot(ctx)
	if err != nil {
		b.presenter.Toast("Could not load orders")
		return err
	}
	if err := b.store.ApplySnapshot(snap); err != nil {
		if errors.Is(err, models.ErrSubscriptionExpired) {
			b.presenter.Warning(subscriptionExpiredWarning)
		}
		return err
	}
	return nil
}

// UpdateStatus applies an operator action optimistically and confirms it
// with the relay. When the relay refuses, the order is re-fetched, or put
// back as it was if that fails too.
func (b *Board) UpdateStatus(ctx context.Context, orderID uint, status models.Status) error {
	if b.store.Suspended() {
		b.presenter.Warning(subscriptionExpiredWarning)
		return models.ErrSubscriptionExpired
	}
	current, ok := b.store.Get(orderID)
	if !ok {
		return models.ErrOrderNotFound
	}
	if !b.viewport.Allows(current.Status, status) {
		return fmt.Errorf("%s cannot move order %d from %s to %s: %w",
			b.viewport, orderID, current.Status, status, models.ErrInvalidTransition)
	}

	prev, err := b.store.ApplyOptimistic(orderID, status)
	if err != nil {
		return err
	}

	confirmed, err := b.api.UpdateStatus(ctx, orderID, status)
	if err == nil {
		if confirmed.ID != 0 {
			b.store.ApplyOrder(confirmed)
		}
		return nil
	}

	log := utils.ErrorLogger.WithFields(logrus.Fields{"order_id": orderID, "status": status})
	log.Warnf("Status update failed: %v", err)
	b.presenter.Toast("Could not update order status")

	if errors.Is(err, models.ErrSubscriptionExpired) {
		b.store.Restore(prev)
		b.store.Suspend()
		b.presenter.Warning(subscriptionExpiredWarning)
		return err
	}

	fresh, fetchErr := b.api.GetOrder(ctx, orderID)
	if fetchErr != nil {
		log.Warnf("Re-fetch failed, rolling back: %v", fetchErr)
		b.store.Restore(prev)
		return err
	}
	b.store.Replace(fresh)
	return err
}
