package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testUserID  uint = 1
	otherUserID uint = 2
)

// MockEventPublisher 模拟订单事件发布器
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store        *memory.Store
	cfg          *config.Config
	clock        *testClock
	publisher    *MockEventPublisher
	metrics      *CommerceMetrics
	entitlements *EntitlementService
	orders       *OrderService
	reconciler   *PaymentReconciler
	sweeper      *SweeperService
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			Alipay:    config.AlipayConfig{Enabled: true},
			WeChatPay: config.WeChatPayConfig{Enabled: false},
		},
		Order: config.OrderConfig{
			PaymentTimeout: 30 * time.Minute,
			ListLimit:      20,
			MaxListLimit:   50,
		},
		Entitlement: config.EntitlementConfig{
			AppMonthlyDays: 30,
			AppYearlyDays:  365,
		},
		Sweeper: config.SweeperConfig{
			TimeoutSpec:   "@every 1m",
			AnalyticsSpec: "@every 10m",
			LockExpiry:    time.Minute,
			BatchSize:     100,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	store.SeedUser(&models.User{ID: testUserID, Username: "alice"})
	store.SeedUser(&models.User{ID: otherUserID, Username: "bob"})
	store.SeedApp(&models.DifyApp{
		ID:           "app-1",
		Name:         "Writing Assistant",
		MonthlyPrice: decimal.RequireFromString("10.00"),
		YearlyPrice:  decimal.RequireFromString("100.00"),
		Mode:         models.AppModeChat,
	})
	store.SeedCourse(&models.Course{ID: 7, Title: "Prompt Engineering", Price: decimal.RequireFromString("99.00"), ValidityDays: 365})
	store.SeedCourse(&models.Course{ID: 8, Title: "Go Basics", Price: decimal.RequireFromString("20.00")})

	cfg := testConfig()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	publisher := new(MockEventPublisher)
	publisher.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)

	metrics := NewCommerceMetrics(nil)
	catalog := NewCatalogService(cfg.Entitlement)
	entitlements := NewEntitlementService(store, catalog, nil, metrics)
	orders := NewOrderService(store, catalog, entitlements, publisher, metrics, cfg)
	orders.SetClock(clock.Now)
	reconciler := NewPaymentReconciler(store, orders, metrics)
	reconciler.SetClock(clock.Now)
	sweeper := NewSweeperService(store, orders, nil, metrics, cfg)
	sweeper.SetClock(clock.Now)

	return &fixture{
		store:        store,
		cfg:          cfg,
		clock:        clock,
		publisher:    publisher,
		metrics:      metrics,
		entitlements: entitlements,
		orders:       orders,
		reconciler:   reconciler,
		sweeper:      sweeper,
	}
}

func appItem(qty int) models.OrderItem {
	return models.OrderItem{AssetType: models.AssetTypeApp, AssetID: "app-1", Quantity: qty}
}

func courseItem(id string, qty int) models.OrderItem {
	return models.OrderItem{AssetType: models.AssetTypeCourse, AssetID: id, Quantity: qty}
}

func (f *fixture) createOrder(t *testing.T, items ...models.OrderItem) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), testUserID, models.PaymentMethodAlipay, items)
	require.NoError(t, err)
	return order
}

func (f *fixture) pay(t *testing.T, order *models.Order, txID string) *models.ReconcileResult {
	t.Helper()
	result, err := f.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(order, txID, models.PaymentEventPayment))
	require.NoError(t, err)
	return result
}

func paymentEvent(order *models.Order, txID string, eventType models.PaymentEventType) *models.PaymentEvent {
	return &models.PaymentEvent{
		OrderID:              order.ID,
		PaidAmount:           order.Amount.StringFixed(2),
		GatewayTransactionID: txID,
		EventType:            eventType,
	}
}

func (f *fixture) asset(t *testing.T, assetType models.AssetType, assetID string) *models.UserAsset {
	t.Helper()
	asset, err := f.store.Assets().Find(context.Background(), testUserID, assetType, assetID)
	require.NoError(t, err)
	return asset
}

func (f *fixture) status(t *testing.T, orderID string) models.OrderStatus {
	t.Helper()
	order, err := f.orders.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return order.Status
}
