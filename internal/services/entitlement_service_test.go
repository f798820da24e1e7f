package services

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitlementService_GrantCreatesRows(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()
	order := f.createOrder(t, appItem(2), courseItem("7", 1), courseItem("8", 1))
	f.pay(t, order, "tx-1")

	app := f.asset(t, models.AssetTypeApp, "app-1")
	require.NotNil(t, app)
	assert.Equal(t, 2, app.Quantity)
	assert.Equal(t, "Writing Assistant", app.AssetName)
	require.NotNil(t, app.AppMode)
	assert.Equal(t, models.AppModeChat, *app.AppMode)
	require.NotNil(t, app.ExpireAt)
	assert.True(t, app.ExpireAt.Equal(start.Add(60*day)))

	course := f.asset(t, models.AssetTypeCourse, "7")
	require.NotNil(t, course.ExpireAt)
	assert.True(t, course.ExpireAt.Equal(start.Add(365*day)))

	perpetual := f.asset(t, models.AssetTypeCourse, "8")
	assert.Nil(t, perpetual.ExpireAt)
	assert.Equal(t, 1, perpetual.Quantity)

	user, err := f.store.Users().GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.NotNil(t, user.MembershipExpires)
	assert.True(t, user.MembershipExpires.Equal(start.Add(365*day)))
}

func TestEntitlementService_ExtensionIsMonotonic(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()

	f.pay(t, f.createOrder(t, appItem(1)), "tx-1")
	first := *f.asset(t, models.AssetTypeApp, "app-1").ExpireAt
	assert.True(t, first.Equal(start.Add(30*day)))

	// 未过期时从原到期时间续期，剩余时间不丢失
	f.clock.Advance(10 * day)
	f.pay(t, f.createOrder(t, appItem(1)), "tx-2")
	second := *f.asset(t, models.AssetTypeApp, "app-1").ExpireAt
	assert.True(t, second.Equal(start.Add(60*day)))
	assert.False(t, second.Before(first))

	// 已过期时从当前时间开始计算
	f.clock.Advance(100 * day)
	now := f.clock.Now()
	f.pay(t, f.createOrder(t, appItem(1)), "tx-3")
	third := *f.asset(t, models.AssetTypeApp, "app-1").ExpireAt
	assert.True(t, third.Equal(now.Add(30*day)))
	assert.False(t, third.Before(second))

	assert.Equal(t, 3, f.asset(t, models.AssetTypeApp, "app-1").Quantity)
}

func TestEntitlementService_PaymentTimeDrivesExpiry(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, appItem(1))
	f.pay(t, order, "tx-1")
	before := *f.asset(t, models.AssetTypeApp, "app-1").ExpireAt

	// 一个更早发生的支付事件计算出的窗口更短，但到期时间不能缩短
	earlier := before.Add(-90 * day)
	event := paymentEvent(f.createOrder(t, appItem(1)), "tx-2", models.PaymentEventPayment)
	event.OccurredAt = &earlier
	_, err := f.reconciler.HandlePaymentEvent(context.Background(), event)
	require.NoError(t, err)

	after := *f.asset(t, models.AssetTypeApp, "app-1").ExpireAt
	assert.False(t, after.Before(before))
	assert.True(t, after.Equal(before.Add(30*day)))
}

func TestEntitlementService_PerpetualStaysPerpetual(t *testing.T) {
	f := newFixture(t)
	f.pay(t, f.createOrder(t, courseItem("8", 1)), "tx-1")
	f.clock.Advance(400 * day)
	f.pay(t, f.createOrder(t, courseItem("8", 2)), "tx-2")

	asset := f.asset(t, models.AssetTypeCourse, "8")
	assert.Nil(t, asset.ExpireAt)
	assert.Equal(t, 3, asset.Quantity)

	entitled, err := f.entitlements.IsEntitled(context.Background(), testUserID, models.AssetTypeCourse, "8", f.clock.Now().Add(10*365*day))
	require.NoError(t, err)
	assert.True(t, entitled)
}

func TestEntitlementService_RefundRestoresPreviousExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	f.pay(t, f.createOrder(t, appItem(1)), "tx-1")
	second := f.createOrder(t, appItem(2))
	f.pay(t, second, "tx-2")

	asset := f.asset(t, models.AssetTypeApp, "app-1")
	assert.Equal(t, 3, asset.Quantity)
	assert.True(t, asset.ExpireAt.Equal(start.Add(90*day)))

	_, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(second, "refund-2", models.PaymentEventRefund))
	require.NoError(t, err)

	asset = f.asset(t, models.AssetTypeApp, "app-1")
	assert.Equal(t, 1, asset.Quantity)
	assert.True(t, asset.ExpireAt.Equal(start.Add(30*day)))

	user, err := f.store.Users().GetByID(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, user.MembershipExpires.Equal(start.Add(30*day)))
}

func TestEntitlementService_RefundKeepsMembershipFromLaterOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	appOrder := f.createOrder(t, appItem(1))
	f.pay(t, appOrder, "tx-app")
	courseOrder := f.createOrder(t, courseItem("7", 1))
	f.pay(t, courseOrder, "tx-course")

	user, err := f.store.Users().GetByID(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, user.MembershipExpires.Equal(start.Add(365*day)))

	_, err = f.reconciler.HandlePaymentEvent(ctx, paymentEvent(appOrder, "refund-app", models.PaymentEventRefund))
	require.NoError(t, err)

	user, err = f.store.Users().GetByID(ctx, testUserID)
	require.NoError(t, err)
	require.NotNil(t, user.MembershipExpires)
	assert.True(t, user.MembershipExpires.Equal(start.Add(365*day)))

	day340 := start.Add(340 * day)
	member, err := f.entitlements.IsMember(ctx, testUserID, day340)
	require.NoError(t, err)
	assert.True(t, member)
	entitled, err := f.entitlements.IsEntitled(ctx, testUserID, models.AssetTypeCourse, "7", day340)
	require.NoError(t, err)
	assert.True(t, entitled)

	// 全部退款后不再是会员
	_, err = f.reconciler.HandlePaymentEvent(ctx, paymentEvent(courseOrder, "refund-course", models.PaymentEventRefund))
	require.NoError(t, err)

	user, err = f.store.Users().GetByID(ctx, testUserID)
	require.NoError(t, err)
	assert.Nil(t, user.MembershipExpires)
	member, err = f.entitlements.IsMember(ctx, testUserID, start)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestEntitlementService_RefundNeverBelowZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, courseItem("8", 3))
	f.pay(t, order, "tx-1")

	// 资产在授予后被其他流程消耗
	asset := f.asset(t, models.AssetTypeCourse, "8")
	asset.Quantity = 1
	require.NoError(t, f.store.Assets().Update(ctx, asset))

	_, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(order, "refund-1", models.PaymentEventRefund))
	require.NoError(t, err)

	asset = f.asset(t, models.AssetTypeCourse, "8")
	require.NotNil(t, asset)
	assert.Equal(t, 0, asset.Quantity)
}

func TestEntitlementService_GrantIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))

	for i := 0; i < 3; i++ {
		err := f.store.Transaction(ctx, func(tx repository.Store) error {
			_, err := f.entitlements.Grant(ctx, tx, order, f.clock.Now())
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.asset(t, models.AssetTypeApp, "app-1").Quantity)

	for i := 0; i < 2; i++ {
		err := f.store.Transaction(ctx, func(tx repository.Store) error {
			_, err := f.entitlements.Revoke(ctx, tx, order, f.clock.Now())
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.asset(t, models.AssetTypeApp, "app-1").Quantity)

	grant, err := f.entitlements.GetGrant(ctx, order.ID)
	require.NoError(t, err)
	assert.NotNil(t, grant.RevokedAt)
}

func TestEntitlementService_RevokeWithoutGrantIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))

	err := f.store.Transaction(ctx, func(tx repository.Store) error {
		grant, err := f.entitlements.Revoke(ctx, tx, order, f.clock.Now())
		assert.Nil(t, grant)
		return err
	})
	assert.NoError(t, err)
}

func TestEntitlementService_GrantFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, appItem(1))

	// 下单后商品从目录下架
	order.Items = append(order.Items, models.OrderItem{AssetType: models.AssetTypeApp, AssetID: "retired", Quantity: 1, UnitPrice: "0.00"})
	broken := order.Clone()
	broken.ID = "broken-order"
	require.NoError(t, f.store.Orders().Create(ctx, broken))

	_, err := f.reconciler.HandlePaymentEvent(ctx, paymentEvent(broken, "tx-broken", models.PaymentEventPayment))
	assert.ErrorIs(t, err, apperrors.ErrInvalidItem)
	assert.Equal(t, models.OrderStatusPending, f.status(t, broken.ID))
	assert.Nil(t, f.asset(t, models.AssetTypeApp, "app-1"))
}

func TestEntitlementService_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()
	f.pay(t, f.createOrder(t, appItem(1)), "tx-1")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"now", start, true},
		{"just before expiry", start.Add(30*day - time.Second), true},
		{"at expiry", start.Add(30 * day), false},
		{"after expiry", start.Add(31 * day), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.entitlements.IsEntitled(ctx, testUserID, models.AssetTypeApp, "app-1", tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			member, err := f.entitlements.IsMember(ctx, testUserID, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, member)
		})
	}

	entitled, err := f.entitlements.IsEntitled(ctx, otherUserID, models.AssetTypeApp, "app-1", start)
	require.NoError(t, err)
	assert.False(t, entitled)

	_, err = f.entitlements.IsMember(ctx, 404, start)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assets, err := f.entitlements.ListUserAssets(ctx, testUserID)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestEntitlementCache_DisabledIsNilSafe(t *testing.T) {
	cache := NewEntitlementCache(nil, time.Minute)
	assert.Nil(t, cache)

	asset, ok := cache.Get(context.Background(), 1, models.AssetTypeApp, "app-1")
	assert.Nil(t, asset)
	assert.False(t, ok)
	assert.Equal(t, int64(-1), cache.Version(context.Background(), 1, models.AssetTypeApp, "app-1"))
	cache.Set(context.Background(), 1, models.AssetTypeApp, "app-1", nil, 0)
	cache.InvalidateOrder(context.Background(), &models.Order{ID: "o1"})
}
