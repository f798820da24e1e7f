package repository

import (
	"context"
	"time"

	"github.com/aihub/commerce-go/internal/models"
)

// 约定：按主键查询不到时返回 (nil, nil)，由调用方决定业务错误

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// GetForUpdate 在事务内对订单行加排他锁
	GetForUpdate(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus 持久化 status, pay_time, payment_method, gateway_trade_no, updated_at
	UpdateStatus(ctx context.Context, order *models.Order) error
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Order, int64, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*models.Order, error)
}

// AssetExpiryStats 资产有效性统计
type AssetExpiryStats struct {
	Active   int64 `json:"active"`
	Expired  int64 `json:"expired"`
	Depleted int64 `json:"depleted"`
}

// UserAssetRepository 用户资产仓库接口
type UserAssetRepository interface {
	Find(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error)
	FindForUpdate(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, error)
	Create(ctx context.Context, asset *models.UserAsset) error
	// Update 持久化 quantity, expire_at, asset_name, app_mode, updated_at
	Update(ctx context.Context, asset *models.UserAsset) error
	ListByUser(ctx context.Context, userID uint) ([]*models.UserAsset, error)
	CountByExpiry(ctx context.Context, at time.Time) (AssetExpiryStats, error)
}

// GrantRepository 授予记录仓库接口
type GrantRepository interface {
	Get(ctx context.Context, orderID string) (*models.EntitlementGrant, error)
	Create(ctx context.Context, grant *models.EntitlementGrant) error
	MarkRevoked(ctx context.Context, orderID string, at time.Time) error
}

// PaymentEventRepository 网关交易幂等记录仓库接口
type PaymentEventRepository interface {
	Get(ctx context.Context, gatewayTransactionID string) (*models.PaymentEventRecord, error)
	Create(ctx context.Context, record *models.PaymentEventRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]*models.PaymentEventRecord, error)
}

// CatalogRepository 商品目录（只读）
type CatalogRepository interface {
	GetApp(ctx context.Context, id string) (*models.DifyApp, error)
	GetCourse(ctx context.Context, id uint) (*models.Course, error)
}

// UserRepository 用户仓库接口
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetForUpdate(ctx context.Context, id uint) (*models.User, error)
	UpdateMembership(ctx context.Context, userID uint, expires *time.Time, at time.Time) error
}

// Store 聚合全部仓库，Transaction 内的 tx 共享同一事务
type Store interface {
	Orders() OrderRepository
	Assets() UserAssetRepository
	Grants() GrantRepository
	PaymentEvents() PaymentEventRepository
	Catalog() CatalogRepository
	Users() UserRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
