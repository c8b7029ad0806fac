package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RestaurantID uint            `gorm:"not null;index" json:"restaurant_id"`
	TableID      *uint           `gorm:"index" json:"table_id"`
	Table        *Table          `gorm:"foreignKey:TableID" json:"table,omitempty"`
	Status       Status          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0.00" json:"total_price"`
	OrderItems   []OrderItem     `gorm:"foreignKey:OrderID" json:"order_items"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	// UpdatedAt doubles as the record version; clients drop anything older than what they hold.
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (o Order) Clone() Order {
	c := o
	if o.TableID != nil {
		id := *o.TableID
		c.TableID = &id
	}
	if o.Table != nil {
		t := *o.Table
		c.Table = &t
	}
	if o.OrderItems != nil {
		c.OrderItems = make([]OrderItem, len(o.OrderItems))
		for i, item := range o.OrderItems {
			c.OrderItems[i] = item.Clone()
		}
	}
	return c
}

// TableLabel -> nama meja untuk notifikasi (kosong jika tanpa meja)
func (o Order) TableLabel() string {
	if o.Table != nil && o.Table.Name != "" {
		return o.Table.Name
	}
	return ""
}

// ComputeTotal sums the effective price of every line item.
func (o Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.OrderItems {
		total = total.Add(item.EffectivePrice())
	}
	return total
}

// StatusUpdate is the payload of an order_updated event.
type StatusUpdate struct {
	OrderID   uint      `json:"order_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the body of the order list endpoint.
type Snapshot struct {
	Active      bool      `json:"active"`
	Orders      []Order   `json:"orders"`
	GeneratedAt time.Time `json:"generated_at"`
}
