package models

import (
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ID      uint      `gorm:"primaryKey" json:"id,omitempty"`
	OrderID uint      `gorm:"not null;index" json:"order_id,omitempty"`
	ItemID  uint      `gorm:"not null" json:"item_id"`
	Item    *MenuItem `gorm:"foreignKey:ItemID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"item,omitempty"`
	// Price is the unit base price captured when the order was placed.
	Price    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity int             `gorm:"not null" json:"quantity"`
	Comment  string          `gorm:"type:text" json:"comment,omitempty"`
	Options  []MenuOption    `gorm:"many2many:order_item_options;" json:"options"`
}

func (i OrderItem) Clone() OrderItem {
	c := i
	if i.Item != nil {
		item := *i.Item
		c.Item = &item
	}
	if i.Options != nil {
		c.Options = append([]MenuOption(nil), i.Options...)
	}
	return c
}

// EffectivePrice = (base + sum option) * quantity
func (i OrderItem) EffectivePrice() decimal.Decimal {
	return LinePrice(i.Price, i.Options, i.Quantity)
}

// LinePrice computes (base + sum(option prices)) * quantity.
func LinePrice(base decimal.Decimal, options []MenuOption, quantity int) decimal.Decimal {
	unit := base
	for _, opt := range options {
		unit = unit.Add(opt.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}
