package services

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// Change describes what an apply call did to the store.
type Change int

const (
	Ignored Change = iota
	Inserted
	Updated
	Removed
	// Stale means the incoming version was older than the one held.
	Stale
)

func (c Change) String() string {
	switch c {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Stale:
		return "stale"
	}
	return "ignored"
}

// OrderStore is the client view of the active orders of one viewport.
// The list is kept sorted by id descending after every mutation.
type OrderStore struct {
	viewport models.Viewport

	mu     sync.Mutex
	orders []models.Order
	// removed holds the version at which an order left the viewport, so an
	// older record cannot bring it back.
	removed   map[uint]time.Time
	suspended bool

	obsMu     sync.Mutex
	observers map[int]func([]models.Order)
	nextObs   int
}

func NewOrderStore(viewport models.Viewport) *OrderStore {
	return &OrderStore{
		viewport:  viewport,
		removed:   make(map[uint]time.Time),
		observers: make(map[int]func([]models.Order)),
	}
}

func (s *OrderStore) Viewport() models.Viewport {
	return s.viewport
}

// OnChange registers an observer that receives a copy of the list after
// each mutation. The returned func removes it.
func (s *OrderStore) OnChange(fn func([]models.Order)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// Orders returns a copy of the current list.
func (s *OrderStore) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *OrderStore) Get(id uint) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.orders[i].Clone(), true
	}
	return models.Order{}, false
}

func (s *OrderStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Suspended reports whether the last snapshot said the subscription expired.
func (s *OrderStore) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Suspend blocks reconciliation until the next active snapshot; used when
// the relay rejects a mutation because the subscription expired.
func (s *OrderStore) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
}

// ApplyOrder upserts a full order. An order whose status is not visible on
// the viewport is removed instead.
func (s *OrderStore) ApplyOrder(o models.Order) (Change, error) {
	if o.ID == 0 {
		utils.ErrorLogger.Warn("Dropping order without id")
		return Ignored, nil
	}

	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		return Ignored, models.ErrSubscriptionExpired
	}
	change := s.upsertLocked(o)
	s.finishLocked(change)
	return change, nil
}

// ApplyStatus changes only the status (and version) of a held order.
// Updates for unknown orders are ignored.
func (s *OrderStore) ApplyStatus(u models.StatusUpdate) (Change, error) {
	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		return Ignored, models.ErrSubscriptionExpired
	}

	change := Ignored
	i := s.indexLocked(u.OrderID)
	switch {
	case i < 0 || !u.Status.Valid():
	case isStale(u.UpdatedAt, s.orders[i].UpdatedAt):
		change = Stale
	case !s.viewport.Visible(u.Status):
		s.tombstoneLocked(u.OrderID, u.UpdatedAt, s.orders[i].UpdatedAt)
		s.removeAtLocked(i)
		change = Removed
	default:
		s.orders[i].Status = u.Status
		if !u.UpdatedAt.IsZero() {
			s.orders[i].UpdatedAt = u.UpdatedAt
		}
		change = Updated
	}
	s.finishLocked(change)
	return change, nil
}

// ApplySnapshot reconciles the store with a full listing. An inactive
// snapshot suspends the store and leaves its content untouched.
func (s *OrderStore) ApplySnapshot(snap models.Snapshot) error {
	s.mu.Lock()
	if !snap.Active {
		wasSuspended := s.suspended
		s.suspended = true
		s.mu.Unlock()
		if !wasSuspended {
			utils.ErrorLogger.WithField("viewport", s.viewport).Warn("Subscription expired, order updates suspended")
		}
		return models.ErrSubscriptionExpired
	}
	s.suspended = false

	listed := make(map[uint]struct{}, len(snap.Orders))
	for _, o := range snap.Orders {
		if o.ID == 0 {
			continue
		}
		listed[o.ID] = struct{}{}
		s.upsertLocked(o)
	}

	kept := s.orders[:0]
	for _, o := range s.orders {
		if _, ok := listed[o.ID]; ok || newerThanSnapshot(o, snap.GeneratedAt) {
			kept = append(kept, o)
			continue
		}
		utils.InfoLogger.WithFields(logrus.Fields{"order_id": o.ID}).Debug("Order no longer listed, dropping")
	}
	s.orders = kept

	// a listing generated after the removal confirms it
	for id, at := range s.removed {
		if _, ok := listed[id]; !ok && !snap.GeneratedAt.IsZero() && at.Before(snap.GeneratedAt) {
			delete(s.removed, id)
		}
	}
	s.finishLocked(Updated)
	return nil
}

// ApplyOptimistic sets the status locally before the server confirms it and
// returns the previous record so the caller can roll back.
func (s *OrderStore) ApplyOptimistic(id uint, status models.Status) (models.Order, error) {
	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		return models.Order{}, models.ErrSubscriptionExpired
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Order{}, models.ErrOrderNotFound
	}
	prev := s.orders[i].Clone()
	if !models.CanTransition(prev.Status, status) {
		s.mu.Unlock()
		return models.Order{}, models.ErrInvalidTransition
	}

	if s.viewport.Visible(status) {
		s.orders[i].Status = status
	} else {
		s.tombstoneLocked(id, prev.UpdatedAt)
		s.removeAtLocked(i)
	}
	s.finishLocked(Updated)
	return prev, nil
}

// Replace overwrites the held record with o, ignoring versions. Used with
// an authoritative re-fetch after a failed mutation.
func (s *OrderStore) Replace(o models.Order) Change {
	if o.ID == 0 {
		return Ignored
	}
	s.mu.Lock()
	delete(s.removed, o.ID)
	change := s.putLocked(o)
	s.finishLocked(change)
	return change
}

// Restore puts back a record returned by ApplyOptimistic.
func (s *OrderStore) Restore(prev models.Order) {
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": prev.ID, "status": prev.Status}).Info("Rolling back optimistic update")
	s.Replace(prev)
}

func (s *OrderStore) Remove(id uint) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.tombstoneLocked(id, s.orders[i].UpdatedAt)
	s.removeAtLocked(i)
	s.finishLocked(Removed)
	return true
}

// Reset empties the store and lifts the suspension.
func (s *OrderStore) Reset(orders []models.Order) {
	s.mu.Lock()
	s.orders = nil
	s.removed = make(map[uint]time.Time)
	s.suspended = false
	for _, o := range orders {
		if o.ID != 0 {
			s.upsertLocked(o)
		}
	}
	s.finishLocked(Updated)
}

func (s *OrderStore) upsertLocked(o models.Order) Change {
	if at, ok := s.removed[o.ID]; ok {
		if !o.UpdatedAt.After(at) {
			utils.InfoLogger.WithFields(logrus.Fields{
				"order_id": o.ID,
				"incoming": o.UpdatedAt,
				"removed":  at,
			}).Debug("Dropping order removed at a newer version")
			return Stale
		}
		delete(s.removed, o.ID)
	}
	i := s.indexLocked(o.ID)
	if i >= 0 && isStale(o.UpdatedAt, s.orders[i].UpdatedAt) {
		utils.InfoLogger.WithFields(logrus.Fields{
			"order_id": o.ID,
			"incoming": o.UpdatedAt,
			"held":     s.orders[i].UpdatedAt,
		}).Debug("Dropping stale order")
		return Stale
	}
	return s.putLocked(o)
}

func (s *OrderStore) putLocked(o models.Order) Change {
	i := s.indexLocked(o.ID)
	if !s.viewport.Visible(o.Status) {
		if i >= 0 {
			s.tombstoneLocked(o.ID, o.UpdatedAt, s.orders[i].UpdatedAt)
			s.removeAtLocked(i)
			return Removed
		}
		s.tombstoneLocked(o.ID, o.UpdatedAt)
		return Ignored
	}
	o = o.Clone()
	if o.OrderItems == nil {
		o.OrderItems = []models.OrderItem{}
	}
	if i >= 0 {
		s.orders[i] = o
		return Updated
	}
	s.orders = append(s.orders, o)
	return Inserted
}

// tombstoneLocked remembers the newest of the given versions for id.
// Without any version there is nothing to compare against later.
func (s *OrderStore) tombstoneLocked(id uint, versions ...time.Time) {
	var at time.Time
	for _, v := range versions {
		if v.After(at) {
			at = v
		}
	}
	if at.IsZero() {
		return
	}
	if prev, ok := s.removed[id]; !ok || at.After(prev) {
		s.removed[id] = at
	}
}

func (s *OrderStore) removeAtLocked(i int) {
	s.orders = append(s.orders[:i], s.orders[i+1:]...)
}

func (s *OrderStore) indexLocked(id uint) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *OrderStore) copyLocked() []models.Order {
	out := make([]models.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

// finishLocked sorts, releases the lock and notifies observers when
// something changed.
func (s *OrderStore) finishLocked(change Change) {
	if change == Ignored || change == Stale {
		s.mu.Unlock()
		return
	}
	sortOrders(s.orders)
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.obsMu.Lock()
	observers := make([]func([]models.Order), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range observers {
		s.notify(fn, snapshot)
	}
}

func (s *OrderStore) notify(fn func([]models.Order), orders []models.Order) {
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.Errorf("Order store observer panicked: %v", r)
		}
	}()
	fn(orders)
}

// sortOrders -> id terbesar di atas, created_at sebagai tie-breaker
func sortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].ID != orders[j].ID {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func isStale(incoming, held time.Time) bool {
	return !incoming.IsZero() && !held.IsZero() && incoming.Before(held)
}

func newerThanSnapshot(o models.Order, generatedAt time.Time) bool {
	return !generatedAt.IsZero() && o.UpdatedAt.After(generatedAt)
}
