package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/realtime"
	"github.com/yeremiapane/order-relay/utils"
)

// CustomerSession is one customer's ordering session: the order being
// assembled and the submitted orders being tracked live.
type CustomerSession struct {
	id        string
	api       OrderAPI
	ch        *realtime.Channel
	sessions  SessionStore
	presenter Presenter
	store     *OrderStore
	poller    *FallbackPoller

	mu        sync.Mutex
	current   models.CurrentOrder
	rooms     *realtime.RoomManager
	sub       *realtime.Subscription
	unobserve func()
	running   bool
}

// NewCustomerSession restores the session from sessions. An empty id starts a new session.
func NewCustomerSession(ctx context.Context, id string, api OrderAPI, ch *realtime.Channel, sessions SessionStore, presenter Presenter, pollInterval time.Duration) (*CustomerSession, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if presenter == nil {
		presenter = LogPresenter{Name: "customer"}
	}
	state, err := sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	s := &CustomerSession{
		id:        id,
		api:       api,
		ch:        ch,
		sessions:  sessions,
		presenter: presenter,
		store:     NewOrderStore(models.ViewportCustomer),
		current:   state.Current,
	}
	s.store.Reset(state.Orders)
	s.poller = NewFallbackPoller(pollInterval, ch.Connected, s.pollOrders)
	return s, nil
}

func (s *CustomerSession) ID() string {
	return s.id
}

func (s *CustomerSession) Orders() []models.Order {
	return s.store.Orders()
}

// Current returns a copy of the order being assembled.
func (s *CustomerSession) Current() models.CurrentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current
	c.Items = append([]models.CartItem(nil), s.current.Items...)
	return c
}

func (s *CustomerSession) Total() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Total().StringFixed(2)
}

func (s *CustomerSession) SetRestaurant(ctx context.Context, restaurantID uint) error {
	s.mu.Lock()
	s.current.RestaurantID = restaurantID
	s.mu.Unlock()
	return s.persist(ctx)
}

func (s *CustomerSession) SetTable(ctx context.Context, tableID *uint) error {
	s.mu.Lock()
	s.current.TableID = tableID
	s.mu.Unlock()
	return s.persist(ctx)
}

func (s *CustomerSession) AddToOrder(ctx context.Context, item models.MenuItem, quantity int, options []models.MenuOption, comment string) error {
	s.mu.Lock()
	err := s.current.Add(item, quantity, options, comment)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *CustomerSession) RemoveFromOrder(ctx context.Context, itemID uint) (bool, error) {
	s.mu.Lock()
	removed := s.current.Remove(itemID)
	s.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, s.persist(ctx)
}

// ClearCurrent drops the items, keeping restaurant and table.
func (s *CustomerSession) ClearCurrent(ctx context.Context) error {
	s.mu.Lock()
	s.current.Clear()
	s.mu.Unlock()
	return s.persist(ctx)
}

// ForgetOrder stops tracking a submitted order.
func (s *CustomerSession) ForgetOrder(ctx context.Context, orderID uint) error {
	if !s.store.Remove(orderID) {
		return nil
	}
	s.mu.Lock()
	rooms := s.rooms
	s.mu.Unlock()
	if rooms != nil {
		rooms.Leave(kds.OrderRoom(orderID))
	}
	return s.persist(ctx)
}

// Submit sends the current order to the relay. On success the order is
// tracked, the submitted lines leave the current order and its room is joined.
func (s *CustomerSession) Submit(ctx context.Context) (models.Order, error) {
	s.mu.Lock()
	current := s.current
	current.Items = append([]models.CartItem(nil), s.current.Items...)
	s.mu.Unlock()

	if current.Empty() {
		return models.Order{}, models.ErrEmptyOrder
	}
	if current.RestaurantID == 0 {
		return models.Order{}, errors.New("submit order: no restaurant selected")
	}

	created, err := s.api.CreateOrder(ctx, current.Payload())
	if err != nil {
		s.presenter.Toast("Could not send the order")
		return models.Order{}, err
	}

	status := created.Status
	if !status.Valid() {
		status = models.StatusPending
	}
	order := current.ToOrder(created.ID, status)
	order.TableID = current.TableID
	if !created.CreatedAt.IsZero() {
		order.CreatedAt = created.CreatedAt
	}
	order.UpdatedAt = created.UpdatedAt
	if !created.TotalPrice.IsZero() {
		order.TotalPrice = created.TotalPrice
	}
	if _, err := s.store.ApplyOrder(order); err != nil {
		return models.Order{}, err
	}

	s.mu.Lock()
	s.current.Deduct(current.Items)
	rooms := s.rooms
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		utils.ErrorLogger.Warnf("Session %s not saved after submit: %v", s.id, err)
	}
	if rooms != nil {
		rooms.JoinOrder(order.ID, nil)
	}

	utils.InfoLogger.WithFields(logrus.Fields{"session": s.id, "order_id": order.ID}).Info("Order submitted")
	return order, nil
}

// Start connects and follows every tracked order.
func (s *CustomerSession) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.rooms = realtime.NewRoomManager(s.ch)
	s.sub = s.ch.Dispatcher().OnOrderUpdated(s.handleOrderUpdated)
	s.unobserve = s.store.OnChange(s.presenter.OrdersChanged)
	rooms := s.rooms
	s.mu.Unlock()

	for _, o := range s.store.Orders() {
		rooms.JoinOrder(o.ID, nil)
	}
	s.ch.Connect(ctx)
	s.poller.Start(ctx)
}

func (s *CustomerSession) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	sub, rooms, unobserve := s.sub, s.rooms, s.unobserve
	s.sub, s.rooms, s.unobserve = nil, nil, nil
	s.mu.Unlock()

	s.poller.Stop()
	sub.Unsubscribe()
	rooms.Close()
	s.ch.Disconnect()
	if unobserve != nil {
		unobserve()
	}
}

func (s *CustomerSession) handleOrderUpdated(u models.StatusUpdate) {
	change, err := s.store.ApplyStatus(u)
	if err != nil || change == Ignored || change == Stale {
		return
	}
	if change == Removed {
		s.mu.Lock()
		rooms := s.rooms
		s.mu.Unlock()
		if rooms != nil {
			rooms.Leave(kds.OrderRoom(u.OrderID))
		}
	}
	if err := s.persist(context.Background()); err != nil {
		utils.ErrorLogger.Warnf("Session %s not saved: %v", s.id, err)
	}
}

// pollOrders refreshes every tracked order by id.
func (s *CustomerSession) pollOrders(ctx context.Context) error {
	var errs []error
	for _, o := range s.store.Orders() {
		fresh, err := s.api.GetOrder(ctx, o.ID)
		if errors.Is(err, models.ErrOrderNotFound) {
			s.store.Remove(o.ID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.store.ApplyOrder(fresh)
	}
	if err := s.persist(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("poll %d orders: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (s *CustomerSession) persist(ctx context.Context) error {
	state := SessionState{Orders: s.store.Orders(), Current: s.Current()}
	return s.sessions.Save(ctx, s.id, state)
}
