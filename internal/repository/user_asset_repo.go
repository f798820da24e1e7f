package repository

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// userAssetRepository 用户资产仓库实现
type userAssetRepository struct {
	db *gorm.DB
}

// NewUserAssetRepository 创建用户资产仓库
func NewUserAssetRepository(db *gorm.DB) UserAssetRepository {
	return &userAssetRepository{db: db}
}

func (r *userAssetRepository) scope(ctx context.Context, userID uint, assetType models.AssetType, assetID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND asset_type = ? AND asset_id = ?", userID, assetType, assetID)
}

// Find 查询用户资产
func (r *userAssetRepository) Find(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error) {
	var asset models.UserAsset
	found, err := first(r.scope(ctx, userID, assetType, assetID), &asset, "get user asset")
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

// FindForUpdate 加锁查询用户资产
func (r *userAssetRepository) FindForUpdate(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error) {
	var asset models.UserAsset
	found, err := first(forUpdate(r.scope(ctx, userID, assetType, assetID)), &asset, "lock user asset")
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

// Create 创建用户资产
func (r *userAssetRepository) Create(ctx context.Context, asset *models.UserAsset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return apperrors.NewDatabaseError("create user asset", err)
	}
	return nil
}

// Update 更新数量与有效期
func (r *userAssetRepository) Update(ctx context.Context, asset *models.UserAsset) error {
	result := r.db.WithContext(ctx).Model(&models.UserAsset{}).
		Where("id = ?", asset.ID).
		Updates(map[string]interface{}{
			"quantity":   asset.Quantity,
			"expire_at":  asset.ExpireAt,
			"asset_name": asset.AssetName,
			"app_mode":   asset.AppMode,
			"updated_at": asset.UpdatedAt,
		})
	if result.Error != nil {
		return apperrors.NewDatabaseError("update user asset", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user asset")
	}
	return nil
}

// ListByUser 获取用户全部资产
func (r *userAssetRepository) ListByUser(ctx context.Context, userID uint) ([]*models.UserAsset, error) {
	var assets []*models.UserAsset
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("asset_type, asset_id").
		Find(&assets).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("list user assets", err)
	}
	return assets, nil
}

// CountByExpiry 统计在 at 时刻有效、已过期、数量耗尽的资产
func (r *userAssetRepository) CountByExpiry(ctx context.Context, at time.Time) (AssetExpiryStats, error) {
	var stats AssetExpiryStats
	err := r.db.WithContext(ctx).Model(&models.UserAsset{}).
		Select(`COUNT(*) FILTER (WHERE quantity > 0 AND (expire_at IS NULL OR expire_at > ?)) AS active,
			COUNT(*) FILTER (WHERE quantity > 0 AND expire_at <= ?) AS expired,
			COUNT(*) FILTER (WHERE quantity <= 0) AS depleted`, at, at).
		Scan(&stats).Error
	if err != nil {
		return stats, apperrors.NewDatabaseError("count user assets", err)
	}
	return stats, nil
}
