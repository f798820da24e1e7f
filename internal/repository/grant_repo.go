package repository

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// grantRepository 授予记录仓库实现
type grantRepository struct {
	db *gorm.DB
}

// NewGrantRepository 创建授予记录仓库
func NewGrantRepository(db *gorm.DB) GrantRepository {
	return &grantRepository{db: db}
}

// Get 根据订单ID获取授予记录
func (r *grantRepository) Get(ctx context.Context, orderID string) (*models.EntitlementGrant, error) {
	var grant models.EntitlementGrant
	found, err := first(r.db.WithContext(ctx).Where("order_id = ?", orderID), &grant, "get entitlement grant")
	if err != nil || !found {
		return nil, err
	}
	return &grant, nil
}

// Create 创建授予记录
func (r *grantRepository) Create(ctx context.Context, grant *models.EntitlementGrant) error {
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		return apperrors.NewDatabaseError("create entitlement grant", err)
	}
	return nil
}

// MarkRevoked 标记已撤销，只对未撤销的记录生效
func (r *grantRepository) MarkRevoked(ctx context.Context, orderID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EntitlementGrant{}).
		Where("order_id = ? AND revoked_at IS NULL", orderID).
		Update("revoked_at", at)
	if result.Error != nil {
		return apperrors.NewDatabaseError("revoke entitlement grant", result.Error)
	}
	return nil
}
