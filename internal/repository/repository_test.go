package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestOrderRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "amount", "status", "payment_method", "items"}).
		AddRow("20261017120000abcd1234", 7, "19.90", "PENDING", "alipay",
			[]byte(`[{"asset_type":"app","asset_id":"a1","quantity":1,"unit_price":"19.90"}]`))
	mock.ExpectQuery(`SELECT \* FROM "qu_orders" WHERE id = \$1`).WillReturnRows(rows)

	order, err := repo.GetByID(context.Background(), "20261017120000abcd1234")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, uint(7), order.UserID)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("19.90")))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "a1", order.Items[0].AssetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByIDAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "qu_orders"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	order, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "qu_orders" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("o1", "PAID"))

	order, err := repo.GetForUpdate(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_DatabaseErrorIsWrapped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "qu_orders"`).WillReturnError(stderrors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "o1")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)
	assert.False(t, apperrors.IsBusiness(err))
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)
	now := time.Now()

	// 支付方式创建后不可变，不在更新列中
	mock.ExpectExec(`UPDATE "qu_orders" SET "gateway_trade_no"=\$1,"pay_time"=\$2,"status"=\$3,"updated_at"=\$4 WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), &models.Order{ID: "o1", Status: models.OrderStatusPaid, PaymentMethod: models.PaymentMethodWechatPay, PayTime: &now, UpdatedAt: now})
	assert.NoError(t, err)

	mock.ExpectExec(`UPDATE "qu_orders" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), &models.Order{ID: "gone", Status: models.OrderStatusCancelled, UpdatedAt: now})
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListPendingBefore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	rows := sqlmock.NewRows([]string{"id", "status"}).
		AddRow("o1", "PENDING").
		AddRow("o2", "PENDING")
	mock.ExpectQuery(`SELECT \* FROM "qu_orders" WHERE .*status = \$1 AND created_at < \$2.* ORDER BY created_at ASC LIMIT`).
		WillReturnRows(rows)

	orders, err := repo.ListPendingBefore(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserAssetRepository_CountByExpiry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserAssetRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER`).
		WillReturnRows(sqlmock.NewRows([]string{"active", "expired", "depleted"}).AddRow(5, 2, 1))

	stats, err := repo.CountByExpiry(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, AssetExpiryStats{Active: 5, Expired: 2, Depleted: 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserAssetRepository_UpdateMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserAssetRepository(db)

	mock.ExpectExec(`UPDATE "qu_user_assets" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.UserAsset{ID: 99, Quantity: 1, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_MarkRevokedOnlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGrantRepository(db)

	mock.ExpectExec(`UPDATE "qu_entitlement_grants" SET "revoked_at"=\$1 WHERE .*revoked_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.MarkRevoked(context.Background(), "o1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentEventRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentEventRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "qu_payment_events" WHERE gateway_transaction_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"gateway_transaction_id", "order_id", "event_type", "paid_amount", "outcome", "result_status"}).
			AddRow("tx-1", "o1", "PAYMENT", "19.90", "APPLIED", "PAID"))

	rec, err := repo.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	result := rec.ToResult()
	assert.Equal(t, models.OutcomeApplied, result.Outcome)
	assert.Equal(t, models.OrderStatusPaid, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransactionCommitAndRollback(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "qu_orders" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Transaction(ctx, func(tx Store) error {
		return tx.Orders().UpdateStatus(ctx, &models.Order{ID: "o1", Status: models.OrderStatusCancelled, UpdatedAt: time.Now()})
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := stderrors.New("boom")
	err = store.Transaction(ctx, func(tx Store) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
