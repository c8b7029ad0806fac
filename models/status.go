package models

import "errors"

type Status string

// Order status. "payid" is the wire value the platform uses for a paid order.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusDelivered  Status = "delivered"
	StatusPaid       Status = "payid"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrSubscriptionExpired = errors.New("restaurant subscription expired")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrEmptyOrder          = errors.New("current order has no items")
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusReady, StatusCancelled},
	StatusReady:      {StatusDelivered, StatusPaid, StatusCancelled},
	StatusDelivered:  {StatusPaid, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusReady, StatusDelivered, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Terminal -> tidak ada transisi lanjutan
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Viewport is the audience an order list is rendered for.
type Viewport string

const (
	ViewportKitchen  Viewport = "kitchen"
	ViewportCashier  Viewport = "cashier"
	ViewportCustomer Viewport = "customer"
)

func (v Viewport) Valid() bool {
	return v == ViewportKitchen || v == ViewportCashier || v == ViewportCustomer
}

// Visible reports whether an order in the given status belongs on the viewport.
// Kitchen only cooks; once an order is ready it is the cashier's problem.
func (v Viewport) Visible(s Status) bool {
	switch v {
	case ViewportKitchen:
		return s == StatusPending || s == StatusInProgress
	case ViewportCashier, ViewportCustomer:
		return s != StatusPaid
	}
	return false
}

// VisibleStatuses lists the statuses shown on the viewport, used for snapshot queries.
func (v Viewport) VisibleStatuses() []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusInProgress, StatusReady, StatusDelivered, StatusPaid, StatusCancelled} {
		if v.Visible(s) {
			out = append(out, s)
		}
	}
	return out
}

// Actions lists the statuses an operator of the viewport may set from the current one.
func (v Viewport) Actions(current Status) []Status {
	var out []Status
	switch v {
	case ViewportKitchen:
		switch current {
		case StatusPending:
			out = append(out, StatusInProgress)
		case StatusInProgress:
			out = append(out, StatusReady)
		}
	case ViewportCashier:
		if current == StatusReady {
			out = append(out, StatusDelivered, StatusPaid)
		}
		if current == StatusDelivered {
			out = append(out, StatusPaid)
		}
		if !current.Terminal() {
			out = append(out, StatusCancelled)
		}
	}
	return out
}

// Allows reports whether an operator of the viewport may move an order to the status.
func (v Viewport) Allows(current, next Status) bool {
	for _, s := range v.Actions(current) {
		if s == next {
			return true
		}
	}
	return false
}
