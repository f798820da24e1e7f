package repository

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// orderRepository 订单仓库实现
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 创建订单
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return apperrors.NewDatabaseError("create order", err)
	}
	return nil
}

// GetByID 根据ID获取订单
func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &order, "get order")
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// GetForUpdate 加锁读取订单
func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	found, err := first(forUpdate(r.db.WithContext(ctx)).Where("id = ?", id), &order, "lock order")
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 更新订单状态相关字段
func (r *orderRepository) UpdateStatus(ctx context.Context, order *models.Order) error {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":           order.Status,
			"pay_time":         order.PayTime,
			"gateway_trade_no": order.GatewayTradeNo,
			"updated_at":       order.UpdatedAt,
		})
	if result.Error != nil {
		return apperrors.NewDatabaseError("update order status", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewOrderNotFoundError(order.ID)
	}
	return nil
}

// ListByUser 分页获取用户订单，按创建时间倒序
func (r *orderRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Order, int64, error) {
	var orders []*models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewDatabaseError("count orders", err)
	}
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, apperrors.NewDatabaseError("list orders", err)
	}
	return orders, total, nil
}

// ListPendingBefore 获取创建时间早于 before 的待支付订单
func (r *orderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("list pending orders", err)
	}
	return orders, nil
}
