package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/realtime"
)

// offlineChannel never reaches a relay; events are injected through its dispatcher.
func offlineChannel() *realtime.Channel {
	return realtime.NewChannel("ws://127.0.0.1:1/ws", realtime.Options{MinBackoff: time.Hour, MaxBackoff: time.Hour})
}

func newTestBoard(t *testing.T, viewport models.Viewport, api OrderAPI) (*Board, *recordingPresenter, *fakeSpeaker) {
	presenter := &recordingPresenter{}
	speaker := &fakeSpeaker{}
	b, err := NewBoard(viewport, 1, api, offlineChannel(), NewNotifier(nil, nil, speaker), presenter, time.Hour)
	require.NoError(t, err)
	return b, presenter, speaker
}

func dispatch(t *testing.T, b *Board, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	b.ch.Dispatcher().Dispatch(event, data)
}

func spoken(s *fakeSpeaker) []string {
	var out []string
	for _, c := range s.calls {
		if c != "cancel" {
			out = append(out, c)
		}
	}
	return out
}

func TestNewBoard_RejectsCustomerViewport(t *testing.T) {
	_, err := NewBoard(models.ViewportCustomer, 1, new(MockOrderAPI), offlineChannel(), nil, nil, 0)
	assert.Error(t, err)
}

func TestBoard_StartLoadsSnapshotAndRebindsWithoutDuplicates(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true, Orders: []models.Order{mkOrder(3, models.StatusPending)}}, nil)

	b, _, speaker := newTestBoard(t, models.ViewportKitchen, api)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	assert.Equal(t, []uint{3}, ids(b.Store().Orders()))

	// two join acks, e.g. after a reconnect
	b.bindHandlers(kds.KitchenRoom(1))
	b.bindHandlers(kds.KitchenRoom(1))
	assert.Equal(t, 1, b.ch.Dispatcher().Count(kds.EventNewOrder))

	dispatch(t, b, kds.EventNewOrder, mkOrder(5, models.StatusPending))
	assert.Equal(t, []uint{5, 3}, ids(b.Store().Orders()))
	assert.Equal(t, []string{"speak:New order number 5"}, spoken(speaker))

	// redelivery neither duplicates the order nor alerts again
	dispatch(t, b, kds.EventNewOrder, mkOrder(5, models.StatusPending))
	assert.Equal(t, []uint{5, 3}, ids(b.Store().Orders()))
	assert.Len(t, spoken(speaker), 1)

	dispatch(t, b, kds.EventOrderUpdated, models.StatusUpdate{OrderID: 5, Status: models.StatusReady})
	assert.Equal(t, []uint{3}, ids(b.Store().Orders()))
}

func TestBoard_IgnoresOtherRestaurants(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true}, nil)
	b, _, speaker := newTestBoard(t, models.ViewportKitchen, api)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()
	b.bindHandlers(kds.KitchenRoom(1))

	other := mkOrder(9, models.StatusPending)
	other.RestaurantID = 2
	dispatch(t, b, kds.EventNewOrder, other)
	assert.Zero(t, b.Store().Len())
	assert.Empty(t, speaker.calls)
}

func TestBoard_CashierAlertsOnReady(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true, Orders: []models.Order{mkOrder(4, models.StatusInProgress)}}, nil)
	b, presenter, speaker := newTestBoard(t, models.ViewportCashier, api)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()
	b.bindHandlers(kds.CashierRoom(1))

	dispatch(t, b, kds.EventOrderUpdated, models.StatusUpdate{OrderID: 4, Status: models.StatusReady})
	dispatch(t, b, kds.EventOrderUpdated, models.StatusUpdate{OrderID: 4, Status: models.StatusReady})
	assert.Equal(t, []string{"speak:Order number 4 is ready to pay"}, spoken(speaker))

	dispatch(t, b, kds.EventNewOrder, mkOrder(6, models.StatusPending))
	assert.Contains(t, presenter.Toasts(), "New order #6")

	dispatch(t, b, kds.EventOrderUpdated, models.StatusUpdate{OrderID: 4, Status: models.StatusPaid})
	assert.Equal(t, []uint{6}, ids(b.Store().Orders()))
}

func TestBoard_StopDisposesHandlers(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true}, nil)
	b, _, _ := newTestBoard(t, models.ViewportKitchen, api)
	require.NoError(t, b.Start(context.Background()))
	b.bindHandlers(kds.KitchenRoom(1))

	b.Stop()
	b.Stop()
	assert.Zero(t, b.ch.Dispatcher().Count(kds.EventNewOrder))
	assert.Zero(t, b.ch.Dispatcher().Count(kds.EventOrderUpdated))
	assert.Zero(t, b.ch.Dispatcher().Count(realtime.EventConnect))

	// a late ack must not resurrect handlers
	b.bindHandlers(kds.KitchenRoom(1))
	assert.Zero(t, b.ch.Dispatcher().Count(kds.EventNewOrder))
}

func TestBoard_RefreshExpired(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: false}, nil)
	b, presenter, _ := newTestBoard(t, models.ViewportKitchen, api)

	err := b.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrSubscriptionExpired)
	assert.Len(t, presenter.Warnings(), 1)

	err = b.UpdateStatus(context.Background(), 1, models.StatusInProgress)
	assert.ErrorIs(t, err, models.ErrSubscriptionExpired)
	api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestBoard_RefreshFailureToasts(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{}, errors.New("connection refused"))
	b, presenter, _ := newTestBoard(t, models.ViewportKitchen, api)

	assert.Error(t, b.Refresh(context.Background()))
	assert.Equal(t, []string{"Could not load orders"}, presenter.Toasts())
}

func TestBoard_UpdateStatusConfirmed(t *testing.T) {
	api := new(MockOrderAPI)
	confirmed := mkOrder(1, models.StatusInProgress)
	confirmed.UpdatedAt = ts(5)
	api.On("UpdateStatus", mock.Anything, uint(1), models.StatusInProgress).Return(confirmed, nil)

	b, _, _ := newTestBoard(t, models.ViewportKitchen, api)
	b.Store().ApplyOrder(mkOrder(1, models.StatusPending))

	require.NoError(t, b.UpdateStatus(context.Background(), 1, models.StatusInProgress))
	got, _ := b.Store().Get(1)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, ts(5), got.UpdatedAt)
	api.AssertExpectations(t)
}

func TestBoard_UpdateStatusRejectsForeignAction(t *testing.T) {
	api := new(MockOrderAPI)
	b, _, _ := newTestBoard(t, models.ViewportKitchen, api)
	b.Store().ApplyOrder(mkOrder(1, models.StatusPending))

	err := b.UpdateStatus(context.Background(), 1, models.StatusCancelled)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	err = b.UpdateStatus(context.Background(), 2, models.StatusInProgress)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestBoard_UpdateStatusFailureRefetches(t *testing.T) {
	api := new(MockOrderAPI)
	fresh := mkOrder(1, models.StatusInProgress)
	fresh.UpdatedAt = ts(9)
	api.On("UpdateStatus", mock.Anything, uint(1), models.StatusReady).Return(models.Order{}, errors.New("timeout"))
	api.On("GetOrder", mock.Anything, uint(1)).Return(fresh, nil)

	b, presenter, _ := newTestBoard(t, models.ViewportKitchen, api)
	b.Store().ApplyOrder(mkOrder(1, models.StatusInProgress))

	err := b.UpdateStatus(context.Background(), 1, models.StatusReady)
	require.Error(t, err)

	got, ok := b.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, ts(9), got.UpdatedAt)
	assert.Equal(t, []string{"Could not update order status"}, presenter.Toasts())
	api.AssertExpectations(t)
}

func TestBoard_UpdateStatusFailureRollsBack(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateStatus", mock.Anything, uint(2), models.StatusPaid).Return(models.Order{}, errors.New("timeout"))
	api.On("GetOrder", mock.Anything, uint(2)).Return(models.Order{}, errors.New("still down"))

	b, _, _ := newTestBoard(t, models.ViewportCashier, api)
	b.Store().ApplyOrder(mkOrder(2, models.StatusReady))

	require.Error(t, b.UpdateStatus(context.Background(), 2, models.StatusPaid))
	got, ok := b.Store().Get(2)
	require.True(t, ok)
	assert.Equal(t, models.StatusReady, got.Status)
}

func TestBoard_UpdateStatusExpiredSuspends(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateStatus", mock.Anything, uint(2), models.StatusDelivered).
		Return(models.Order{}, &APIError{StatusCode: 402, Message: "subscription expired"})

	b, presenter, _ := newTestBoard(t, models.ViewportCashier, api)
	b.Store().ApplyOrder(mkOrder(2, models.StatusReady))

	err := b.UpdateStatus(context.Background(), 2, models.StatusDelivered)
	assert.ErrorIs(t, err, models.ErrSubscriptionExpired)
	assert.True(t, b.Store().Suspended())
	assert.NotEmpty(t, presenter.Warnings())

	got, _ := b.Store().Get(2)
	assert.Equal(t, models.StatusReady, got.Status)
	api.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
}

func TestBoard_RejoinResyncsMissedOrders(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true, Orders: []models.Order{mkOrder(3, models.StatusPending)}}, nil).Once()
	api.On("Snapshot", mock.Anything).Return(models.Snapshot{Active: true, Orders: []models.Order{
		mkOrder(9, models.StatusPending), mkOrder(3, models.StatusPending),
	}}, nil)

	b, _, _ := newTestBoard(t, models.ViewportKitchen, api)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	b.bindHandlers(kds.KitchenRoom(1))
	assert.Equal(t, []uint{3}, ids(b.Store().Orders()))
	api.AssertNumberOfCalls(t, "Snapshot", 1)

	// order 9 was pushed while the socket was down
	b.bindHandlers(kds.KitchenRoom(1))
	assert.Equal(t, []uint{9, 3}, ids(b.Store().Orders()))
	api.AssertNumberOfCalls(t, "Snapshot", 2)
}

// renewableAPI reports an expired subscription until renewed.
type renewableAPI struct {
	MockOrderAPI
	renewed atomic.Bool
}

func (a *renewableAPI) Snapshot(context.Context) (models.Snapshot, error) {
	if !a.renewed.Load() {
		return models.Snapshot{Active: false}, nil
	}
	return models.Snapshot{Active: true, Orders: []models.Order{mkOrder(3, models.StatusPending)}}, nil
}

func TestBoard_SuspendedBoardPollsWhileConnected(t *testing.T) {
	hub := kds.NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, models.RoleKitchen, 1)
	}))
	defer srv.Close()
	defer hub.Close()

	api := &renewableAPI{}
	ch := realtime.NewChannel("ws"+strings.TrimPrefix(srv.URL, "http"), realtime.Options{MinBackoff: 10 * time.Millisecond})
	presenter := &recordingPresenter{}
	b, err := NewBoard(models.ViewportKitchen, 1, api, ch, nil, presenter, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	require.True(t, b.Store().Suspended())
	require.Eventually(t, func() bool { return hub.RoomSize(kds.KitchenRoom(1)) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.True(t, ch.Connected())

	api.renewed.Store(true)
	require.Eventually(t, func() bool {
		return !b.Store().Suspended() && b.Store().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBoard_PermissionErrorDoesNotSuspend(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateStatus", mock.Anything, uint(2), models.StatusDelivered).
		Return(models.Order{}, &APIError{StatusCode: http.StatusForbidden, Message: "actor does not match token"})
	api.On("GetOrder", mock.Anything, uint(2)).Return(mkOrder(2, models.StatusReady), nil)

	b, presenter, _ := newTestBoard(t, models.ViewportCashier, api)
	b.Store().ApplyOrder(mkOrder(2, models.StatusReady))

	err := b.UpdateStatus(context.Background(), 2, models.StatusDelivered)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrSubscriptionExpired)
	assert.False(t, b.Store().Suspended())
	assert.Empty(t, presenter.Warnings())

	got, ok := b.Store().Get(2)
	require.True(t, ok)
	assert.Equal(t, models.StatusReady, got.Status)
}
