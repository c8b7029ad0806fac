package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/models"
)

func TestDispatcher_UnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	sub := d.On("ping", func(json.RawMessage) { calls++ })

	assert.Equal(t, 1, d.Dispatch("ping", nil))
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, d.Dispatch("ping", nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.Count("ping"))
}

func TestDispatcher_RunsInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		d.On("e", func(json.RawMessage) { got = append(got, i) })
	}
	d.Dispatch("e", nil)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestDispatcher_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.On("e", func(json.RawMessage) { panic("boom") })
	d.On("e", func(json.RawMessage) { called = true })

	assert.NotPanics(t, func() { d.Dispatch("e", nil) })
	assert.True(t, called)
}

func TestDispatcher_Off(t *testing.T) {
	d := NewDispatcher()
	d.On("e", func(json.RawMessage) {})
	d.On("e", func(json.RawMessage) {})
	d.Off("e")
	assert.Equal(t, 0, d.Count("e"))
}

func TestDispatcher_TypedHandlers(t *testing.T) {
	d := NewDispatcher()
	var orders []models.Order
	var updates []models.StatusUpdate
	d.OnNewOrder(func(o models.Order) { orders = append(orders, o) })
	d.OnOrderUpdated(func(u models.StatusUpdate) { updates = append(updates, u) })

	d.Dispatch(kds.EventNewOrder, json.RawMessage(`{"id":5,"status":"pending","order_items":[]}`))
	d.Dispatch(kds.EventNewOrder, json.RawMessage(`{"status":"pending"}`))
	d.Dispatch(kds.EventNewOrder, json.RawMessage(`not json`))
	d.Dispatch(kds.EventOrderUpdated, json.RawMessage(`{"order_id":5,"status":"ready"}`))
	d.Dispatch(kds.EventOrderUpdated, json.RawMessage(`{"order_id":5,"status":"teleported"}`))
	d.Dispatch(kds.EventOrderUpdated, json.RawMessage(`{"status":"ready"}`))

	require.Len(t, orders, 1)
	assert.Equal(t, uint(5), orders[0].ID)
	require.Len(t, updates, 1)
	assert.Equal(t, models.StatusReady, updates[0].Status)
}
