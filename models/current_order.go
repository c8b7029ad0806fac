package models

import (
	"github.com/shopspring/decimal"
)

// CartItem is one line of a CurrentOrder.
type CartItem struct {
	ItemID   uint            `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Options  []MenuOption    `json:"options"`
	Comment  string          `json:"comment,omitempty"`
}

// CurrentOrder is the order a customer session is assembling before submission.
type CurrentOrder struct {
	RestaurantID uint       `json:"restaurant_id"`
	TableID      *uint      `json:"table_id"`
	Items        []CartItem `json:"items"`
}

// CreateOrderItem / CreateOrderRequest -> payload POST orders
type CreateOrderItem struct {
	ItemID   uint   `json:"item_id" binding:"required"`
	Comment  string `json:"comment"`
	Quantity int    `json:"quantity" binding:"required"`
	Options  []uint `json:"options"`
}

type CreateOrderRequest struct {
	RestaurantID uint              `json:"restaurant_id"`
	TableID      *uint             `json:"table_id"`
	TotalPrice   string            `json:"total_price"`
	Items        []CreateOrderItem `json:"items" binding:"required"`
}

// Add puts an item into the order. Adding an item that is already present
// merges it: quantities add up, options are unioned by id and a non-empty
// comment replaces the previous one.
func (c *CurrentOrder) Add(item MenuItem, quantity int, options []MenuOption, comment string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		line := &c.Items[i]
		if line.ItemID != item.ID {
			continue
		}
		line.Quantity += quantity
		line.Options = unionOptions(line.Options, options)
		if comment != "" {
			line.Comment = comment
		}
		return nil
	}
	c.Items = append(c.Items, CartItem{
		ItemID:   item.ID,
		Name:     item.Name,
		Price:    item.Price,
		Quantity: quantity,
		Options:  unionOptions(nil, options),
		Comment:  comment,
	})
	return nil
}

// Remove drops the line for the given menu item.
func (c *CurrentOrder) Remove(itemID uint) bool {
	for i, line := range c.Items {
		if line.ItemID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the order but keeps the restaurant and table it belongs to.
func (c *CurrentOrder) Clear() {
	c.Items = nil
}

// Deduct takes submitted lines out of the order. Quantity added to a line
// after it was submitted stays in the order.
func (c *CurrentOrder) Deduct(submitted []CartItem) {
	for _, sent := range submitted {
		for i := range c.Items {
			if c.Items[i].ItemID != sent.ItemID {
				continue
			}
			c.Items[i].Quantity -= sent.Quantity
			if c.Items[i].Quantity <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			}
			break
		}
	}
	if len(c.Items) == 0 {
		c.Items = nil
	}
}

func (c CurrentOrder) Empty() bool {
	return len(c.Items) == 0
}

func (c CurrentOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Items {
		total = total.Add(LinePrice(line.Price, line.Options, line.Quantity))
	}
	return total
}

// Payload builds the body for the order creation endpoint.
func (c CurrentOrder) Payload() CreateOrderRequest {
	req := CreateOrderRequest{
		RestaurantID: c.RestaurantID,
		TableID:      c.TableID,
		TotalPrice:   c.Total().StringFixed(2),
		Items:        make([]CreateOrderItem, 0, len(c.Items)),
	}
	for _, line := range c.Items {
		ids := make([]uint, 0, len(line.Options))
		for _, opt := range line.Options {
			ids = append(ids, opt.ID)
		}
		req.Items = append(req.Items, CreateOrderItem{
			ItemID:   line.ItemID,
			Comment:  line.Comment,
			Quantity: line.Quantity,
			Options:  ids,
		})
	}
	return req
}

// ToOrder converts the order into the local record of a submitted order.
func (c CurrentOrder) ToOrder(id uint, status Status) Order {
	o := Order{
		ID:           id,
		RestaurantID: c.RestaurantID,
		TableID:      c.TableID,
		Status:       status,
		TotalPrice:   c.Total(),
		OrderItems:   make([]OrderItem, 0, len(c.Items)),
	}
	for _, line := range c.Items {
		o.OrderItems = append(o.OrderItems, OrderItem{
			OrderID:  id,
			ItemID:   line.ItemID,
			Item:     &MenuItem{ID: line.ItemID, Name: line.Name, Price: line.Price},
			Price:    line.Price,
			Quantity: line.Quantity,
			Comment:  line.Comment,
			Options:  append([]MenuOption(nil), line.Options...),
		})
	}
	return o
}

func unionOptions(have, add []MenuOption) []MenuOption {
	out := append([]MenuOption(nil), have...)
	for _, opt := range add {
		dup := false
		for _, existing := range out {
			if existing.ID == opt.ID {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, opt)
		}
	}
	return out
}
