package repository

import (
	"context"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// paymentEventRepository 网关交易幂等记录仓库实现
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository 创建幂等记录仓库
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// Get 根据网关交易号获取记录
func (r *paymentEventRepository) Get(ctx context.Context, gatewayTransactionID string) (*models.PaymentEventRecord, error) {
	var record models.PaymentEventRecord
	found, err := first(r.db.WithContext(ctx).Where("gateway_transaction_id = ?", gatewayTransactionID), &record, "get payment event")
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// Create 写入记录
func (r *paymentEventRepository) Create(ctx context.Context, record *models.PaymentEventRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.NewDatabaseError("create payment event", err)
	}
	return nil
}

// ListByOrder 获取订单的全部网关事件
func (r *paymentEventRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.PaymentEventRecord, error) {
	var records []*models.PaymentEventRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("processed_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payment events", err)
	}
	return records, nil
}
