package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentOrder_Total(t *testing.T) {
	var c CurrentOrder
	item := MenuItem{ID: 1, Name: "Shawarma", Price: decimal.NewFromInt(50)}
	opt := MenuOption{ID: 10, Name: "Extra cheese", Price: decimal.NewFromInt(5)}

	require.NoError(t, c.Add(item, 2, []MenuOption{opt}, ""))

	assert.True(t, c.Total().Equal(decimal.NewFromInt(110)))
	assert.Equal(t, "110.00", c.Payload().TotalPrice)
}

func TestCurrentOrder_AddMergesSameItem(t *testing.T) {
	var c CurrentOrder
	item := MenuItem{ID: 1, Name: "Falafel", Price: decimal.RequireFromString("12.50")}
	garlic := MenuOption{ID: 3, Name: "Garlic", Price: decimal.RequireFromString("1.25")}
	tahini := MenuOption{ID: 4, Name: "Tahini", Price: decimal.NewFromInt(2)}

	require.NoError(t, c.Add(item, 1, []MenuOption{garlic}, "no onion"))
	require.NoError(t, c.Add(item, 2, []MenuOption{garlic, tahini}, ""))

	require.Len(t, c.Items, 1)
	line := c.Items[0]
	assert.Equal(t, 3, line.Quantity)
	assert.Len(t, line.Options, 2)
	assert.Equal(t, "no onion", line.Comment)
	// (12.50 + 1.25 + 2) * 3
	assert.Equal(t, "47.25", c.Total().StringFixed(2))
}

func TestCurrentOrder_AddRejectsNonPositiveQuantity(t *testing.T) {
	var c CurrentOrder
	err := c.Add(MenuItem{ID: 1}, 0, nil, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.True(t, c.Empty())
}

func TestCurrentOrder_RemoveAndClear(t *testing.T) {
	c := CurrentOrder{RestaurantID: 4}
	require.NoError(t, c.Add(MenuItem{ID: 1, Price: decimal.NewFromInt(1)}, 1, nil, ""))
	require.NoError(t, c.Add(MenuItem{ID: 2, Price: decimal.NewFromInt(1)}, 1, nil, ""))

	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	require.Len(t, c.Items, 1)
	assert.Equal(t, uint(2), c.Items[0].ItemID)

	c.Clear()
	assert.True(t, c.Empty())
	assert.Equal(t, uint(4), c.RestaurantID)
}

func TestCurrentOrder_DeductKeepsLaterAdditions(t *testing.T) {
	c := CurrentOrder{RestaurantID: 4}
	require.NoError(t, c.Add(MenuItem{ID: 1, Price: decimal.NewFromInt(1)}, 2, nil, ""))
	sent := append([]CartItem(nil), c.Items...)

	require.NoError(t, c.Add(MenuItem{ID: 1, Price: decimal.NewFromInt(1)}, 1, nil, ""))
	require.NoError(t, c.Add(MenuItem{ID: 2, Price: decimal.NewFromInt(1)}, 3, nil, ""))

	c.Deduct(sent)
	require.Len(t, c.Items, 2)
	assert.Equal(t, CartItem{ItemID: 1, Price: decimal.NewFromInt(1), Quantity: 1}, c.Items[0])
	assert.Equal(t, uint(2), c.Items[1].ItemID)

	c.Deduct(c.Items)
	assert.True(t, c.Empty())
	assert.Nil(t, c.Items)
}

func TestCurrentOrder_PayloadAndToOrder(t *testing.T) {
	table := uint(9)
	c := CurrentOrder{RestaurantID: 2, TableID: &table}
	require.NoError(t, c.Add(MenuItem{ID: 1, Name: "Tea", Price: decimal.NewFromInt(3)}, 2,
		[]MenuOption{{ID: 7, Price: decimal.NewFromInt(1)}}, "sugar"))

	p := c.Payload()
	assert.Equal(t, uint(2), p.RestaurantID)
	assert.Equal(t, &table, p.TableID)
	require.Len(t, p.Items, 1)
	assert.Equal(t, CreateOrderItem{ItemID: 1, Comment: "sugar", Quantity: 2, Options: []uint{7}}, p.Items[0])

	o := c.ToOrder(77, StatusPending)
	assert.Equal(t, uint(77), o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(8)))
	assert.True(t, o.ComputeTotal().Equal(o.TotalPrice))
}
