package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

func TestMain(m *testing.M) {
	utils.SilenceLoggers()
	os.Exit(m.Run())
}

type MockOrderAPI struct {
	mock.Mock
}

func (m *MockOrderAPI) Snapshot(ctx context.Context) (models.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Snapshot), args.Error(1)
}

func (m *MockOrderAPI) UpdateStatus(ctx context.Context, orderID uint, status models.Status) (models.Order, error) {
	args := m.Called(ctx, orderID, status)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *MockOrderAPI) GetOrder(ctx context.Context, orderID uint) (models.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *MockOrderAPI) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Order), args.Error(1)
}

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

// recordingPresenter keeps everything it was asked to show.
type recordingPresenter struct {
	mu        sync.Mutex
	renders   [][]models.Order
	connected []bool
	toasts    []string
	warnings  []string
}

func (p *recordingPresenter) OrdersChanged(orders []models.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders = append(p.renders, orders)
}

func (p *recordingPresenter) ConnectionChanged(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, connected)
}

func (p *recordingPresenter) Toast(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, msg)
}

func (p *recordingPresenter) Warning(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, msg)
}

func (p *recordingPresenter) Toasts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.toasts...)
}

func (p *recordingPresenter) Warnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.warnings...)
}

// memorySessions is an in-memory SessionStore.
type memorySessions struct {
	mu    sync.Mutex
	state map[string]SessionState
	saves int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{state: make(map[string]SessionState)}
}

func (m *memorySessions) Load(_ context.Context, id string) (SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[id], nil
}

func (m *memorySessions) Save(_ context.Context, id string, st SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[id] = st
	m.saves++
	return nil
}

func ts(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC)
}

func mkOrder(id uint, status models.Status) models.Order {
	return models.Order{ID: id, RestaurantID: 1, Status: status, OrderItems: []models.OrderItem{}}
}
