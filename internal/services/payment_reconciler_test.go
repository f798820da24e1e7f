package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentReconciler_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.createOrder(t, models.OrderItem{AssetType: models.AssetTypeApp, AssetID: "app-1", Quantity: 1, UnitPrice: "10.00"})
	assert.Equal(t, "10.00", order.Amount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPending, order.Status)

	first, err := f.reconciler.HandlePaymentEvent(ctx, &models.PaymentEvent{
		OrderID: order.ID, PaidAmount: "10.00", GatewayTransactionID: "t1", EventType: models.PaymentEventPayment,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, first.Outcome)
	assert.Equal(t, models.OrderStatusPaid, first.Status)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.OrderStatusPaid, f.status(t, order.ID))
	assert.Equal(t, 1, f.asset(t, models.AssetTypeApp, "app-1").Quantity)

	replay, err := f.reconciler.HandlePaymentEvent(ctx, &models.PaymentEvent{
		OrderID: order.ID, PaidAmount: "10.00", GatewayTransactionID: "t1", EventType: models.PaymentEventPayment,
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.Outcome, replay.Outcome)
	assert.Equal(t, first.Status, replay.Status)
	assert.Equal(t, first.ProcessedAt, replay.ProcessedAt)
	assert.Equal(t, 1, f.asset(t, models.AssetTypeApp, "app-1").Quantity)

	_, err = f.reconciler.HandlePaymentEvent(ctx, &models.PaymentEvent{
		OrderID: order.ID, PaidAmount: "5.00", GatewayTransactionID: "t2", EventType: models.PaymentEventPayment,
	})
	assert.ErrorIs(t, err, apperrors.ErrAmountMismatch)
	assert.Equal(t, models.OrderStatusPaid, f.status(t, order.ID))

	rec, err := f.store.PaymentEvents().Get(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, rec)

	f.publisher.AssertNumberOfCalls(t, "PublishOrderEvent", 1)
}

func TestPaymentReconciler_ReplaysGrantOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1), courseItem("7", 1))

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "tx-replay", models.PaymentEventPayment))
			if !assert.NoError(t, err) {
				return
			}
			if !result.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, f.asset(t, models.AssetTypeApp, "app-1").Quantity)
	assert.Equal(t, 1, f.asset(t, models.AssetTypeCourse, "7").Quantity)

	grant, err := f.entitlements.GetGrant(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Len(t, grant.Lines, 2)
}

func TestPaymentReconciler_ConcurrentDistinctTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))

	var wg sync.WaitGroup
	results := make([]*models.ReconcileResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, fmt.Sprintf("tx-%d", i), models.PaymentEventPayment))
			if assert.NoError(t, err) {
				results[i] = result
			}
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Outcome == models.OutcomeApplied {
			applied++
		} else {
			assert.Equal(t, models.OutcomeAlreadyApplied, r.Outcome)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, f.asset(t, models.AssetTypeApp, "app-1").Quantity)
}

func TestPaymentReconciler_RecordsGatewayTradeNo(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, appItem(1))
	event := paymentEvent(order, "ali-2026-1", models.PaymentEventPayment)
	event.PaymentMethod = models.PaymentMethodAlipay
	paidAt := f.clock.Now().Add(-5)
	event.OccurredAt = &paidAt

	_, err := f.reconciler.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ali-2026-1", stored.GatewayTradeNo)
	require.NotNil(t, stored.PayTime)
	assert.True(t, stored.PayTime.Equal(paidAt))
}

func TestPaymentReconciler_KeepsOrderPaymentMethod(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.cfg.Payment.MethodEnabled(string(models.PaymentMethodWechatPay)))

	order := f.createOrder(t, appItem(1))
	require.Equal(t, models.PaymentMethodAlipay, order.PaymentMethod)

	event := paymentEvent(order, "wx-1", models.PaymentEventPayment)
	event.PaymentMethod = models.PaymentMethodWechatPay
	result, err := f.reconciler.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, result.Outcome)

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	assert.Equal(t, models.PaymentMethodAlipay, stored.PaymentMethod)
}

func TestPaymentReconciler_LatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))

	_, err := f.orders.CancelOrder(ctx, order.ID, testUserID)
	require.NoError(t, err)

	_, err = f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "late-1", models.PaymentEventPayment))
	assert.ErrorIs(t, err, apperrors.ErrLatePayment)
	assert.Equal(t, ReconcileDisposition{Acknowledge: true, Alert: true}, ClassifyReconcileError(err))

	assert.Equal(t, models.OrderStatusCancelled, f.status(t, order.ID))
	assert.Nil(t, f.asset(t, models.AssetTypeApp, "app-1"))
	rec, err := f.store.PaymentEvents().Get(ctx, "late-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPaymentReconciler_DuplicateTransactionAcrossOrders(t *testing.T) {
	f := newFixture(t)
	first := f.createOrder(t, appItem(1))
	second := f.createOrder(t, appItem(1))
	f.pay(t, first, "shared-tx")

	_, err := f.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(second, "shared-tx", models.PaymentEventPayment))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateTransaction)
	assert.Equal(t, models.OrderStatusPending, f.status(t, second.ID))
}

func TestPaymentReconciler_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.HandlePaymentEvent(context.Background(), &models.PaymentEvent{
		OrderID: "does-not-exist", PaidAmount: "10.00", GatewayTransactionID: "t1", EventType: models.PaymentEventPayment,
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
	assert.True(t, ClassifyReconcileError(err).Acknowledge)
}

func TestPaymentReconciler_RefundLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))
	f.pay(t, order, "pay-1")

	entitled, err := f.entitlements.IsEntitled(ctx, testUserID, models.AssetTypeApp, "app-1", f.clock.Now())
	require.NoError(t, err)
	assert.True(t, entitled)

	refund, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "refund-1", models.PaymentEventRefund))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, refund.Outcome)
	assert.Equal(t, models.OrderStatusRefunded, refund.Status)

	asset := f.asset(t, models.AssetTypeApp, "app-1")
	require.NotNil(t, asset, "row is retained after refund")
	assert.Equal(t, 0, asset.Quantity)

	entitled, err = f.entitlements.IsEntitled(ctx, testUserID, models.AssetTypeApp, "app-1", f.clock.Now())
	require.NoError(t, err)
	assert.False(t, entitled)

	replay, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "refund-1", models.PaymentEventRefund))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	again, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "refund-2", models.PaymentEventRefund))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyApplied, again.Outcome)
	assert.Equal(t, 0, f.asset(t, models.AssetTypeApp, "app-1").Quantity)

	_, err = f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "pay-after-refund", models.PaymentEventPayment))
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
}

func TestPaymentReconciler_RefundPendingIsIllegal(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, appItem(1))

	_, err := f.reconciler.HandlePaymentEvent(context.Background(), paymentEvent(order, "refund-early", models.PaymentEventRefund))
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
	assert.Equal(t, ReconcileDisposition{Acknowledge: true, Alert: true}, ClassifyReconcileError(err))
	assert.Equal(t, models.OrderStatusPending, f.status(t, order.ID))
}

func TestPaymentReconciler_RejectsMalformedEvents(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, appItem(1))

	tests := []struct {
		name  string
		event *models.PaymentEvent
	}{
		{"nil", nil},
		{"unknown type", &models.PaymentEvent{OrderID: order.ID, PaidAmount: "10.00", GatewayTransactionID: "x", EventType: "CHARGEBACK"}},
		{"missing transaction", &models.PaymentEvent{OrderID: order.ID, PaidAmount: "10.00", EventType: models.PaymentEventPayment}},
		{"non numeric amount", &models.PaymentEvent{OrderID: order.ID, PaidAmount: "ten", GatewayTransactionID: "x", EventType: models.PaymentEventPayment}},
		{"unknown method", &models.PaymentEvent{OrderID: order.ID, PaidAmount: "10.00", GatewayTransactionID: "x", EventType: models.PaymentEventPayment, PaymentMethod: "paypal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reconciler.HandlePaymentEvent(context.Background(), tt.event)
			require.Error(t, err)
			assert.Equal(t, ReconcileDisposition{Acknowledge: true}, ClassifyReconcileError(err))
		})
	}
	assert.Equal(t, models.OrderStatusPending, f.status(t, order.ID))
}

func TestClassifyReconcileError(t *testing.T) {
	assert.Equal(t, ReconcileDisposition{Acknowledge: true}, ClassifyReconcileError(nil))
	assert.Equal(t, ReconcileDisposition{}, ClassifyReconcileError(apperrors.NewDatabaseError("lock order", fmt.Errorf("deadlock"))))
	assert.Equal(t, ReconcileDisposition{}, ClassifyReconcileError(fmt.Errorf("plain")))
	assert.Equal(t, ReconcileDisposition{Acknowledge: true, Alert: true},
		ClassifyReconcileError(apperrors.NewAmountMismatchError("o1", "10.00", "5.00")))
}
