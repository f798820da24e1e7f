package services

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"go.uber.org/zap"
)

// EntitlementService 权益授予、撤销与查询
type EntitlementService struct {
	store   repository.Store
	catalog *CatalogService
	cache   *EntitlementCache
	metrics *CommerceMetrics
}

// NewEntitlementService 创建权益服务，cache 与 metrics 可为 nil
func NewEntitlementService(store repository.Store, catalog *CatalogService, cache *EntitlementCache, metrics *CommerceMetrics) *EntitlementService {
	return &EntitlementService{
		store:   store,
		catalog: catalog,
		cache:   cache,
		metrics: metrics,
	}
}

// Grant 授予订单中的全部资产，必须在锁定订单的事务 tx 内调用
// 同一订单重复调用只生效一次
func (s *EntitlementService) Grant(ctx context.Context, tx repository.Store, order *models.Order, now time.Time) (*models.EntitlementGrant, error) {
	existing, err := tx.Grants().Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Debug("订单权益已授予，跳过", zap.String("order_id", order.ID))
		return existing, nil
	}

	// 锁用户行，同一用户的授予串行执行
	user, err := tx.Users().GetForUpdate(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user")
	}

	grant := &models.EntitlementGrant{
		OrderID:   order.ID,
		UserID:    order.UserID,
		GrantedAt: now,
	}

	var latest *time.Time
	for _, item := range order.Items {
		resolved, err := s.catalog.Resolve(ctx, tx.Catalog(), item)
		if err != nil {
			return nil, err
		}
		line, asset, err := s.grantItem(ctx, tx, order.UserID, resolved, now)
		if err != nil {
			return nil, err
		}
		grant.Lines = append(grant.Lines, line)
		if asset.ExpireAt != nil && (latest == nil || asset.ExpireAt.After(*latest)) {
			t := *asset.ExpireAt
			latest = &t
		}
	}

	if latest != nil && (user.MembershipExpires == nil || latest.After(*user.MembershipExpires)) {
		base := now
		if user.MembershipExpires != nil && user.MembershipExpires.After(now) {
			base = *user.MembershipExpires
		}
		if latest.After(base) {
			grant.MembershipDeltaSeconds = int64(latest.Sub(base) / time.Second)
		}
		if err := tx.Users().UpdateMembership(ctx, user.ID, latest, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Grants().Create(ctx, grant); err != nil {
		return nil, err
	}

	logger.Info("订单权益授予完成",
		zap.String("order_id", order.ID),
		zap.Uint("user_id", order.UserID),
		zap.Int("lines", len(grant.Lines)))
	return grant, nil
}

// grantItem 创建资产行或合并到已有行，有效期只延长不缩短
func (s *EntitlementService) grantItem(ctx context.Context, tx repository.Store, userID uint, resolved *ResolvedItem, now time.Time) (models.GrantLine, *models.UserAsset, error) {
	item := resolved.Item
	line := models.GrantLine{
		AssetType: item.AssetType,
		AssetID:   item.AssetID,
		Quantity:  item.Quantity,
	}

	asset, err := tx.Assets().FindForUpdate(ctx, userID, item.AssetType, item.AssetID)
	if err != nil {
		return line, nil, err
	}

	if asset == nil {
		asset = &models.UserAsset{
			UserID:    userID,
			AssetType: item.AssetType,
			AppMode:   resolved.AppMode,
			AssetID:   item.AssetID,
			AssetName: resolved.Name,
			Quantity:  item.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if resolved.Validity > 0 {
			expire := now.Add(resolved.Validity)
			asset.ExpireAt = &expire
			line.ExpiryDeltaSeconds = int64(resolved.Validity / time.Second)
		}
		if err := tx.Assets().Create(ctx, asset); err != nil {
			return line, nil, err
		}
		return line, asset, nil
	}

	asset.Quantity += item.Quantity
	asset.AssetName = resolved.Name
	if resolved.AppMode != nil {
		asset.AppMode = resolved.AppMode
	}
	switch {
	case asset.ExpireAt == nil:
		// 永久资产保持永久
	case resolved.Validity == 0:
		previous := *asset.ExpireAt
		line.PreviousExpireAt = &previous
		asset.ExpireAt = nil
	default:
		base := *asset.ExpireAt
		if now.After(base) {
			base = now
		}
		extended := base.Add(resolved.Validity)
		line.ExpiryDeltaSeconds = int64(extended.Sub(*asset.ExpireAt) / time.Second)
		asset.ExpireAt = &extended
	}
	asset.UpdatedAt = now

	if err := tx.Assets().Update(ctx, asset); err != nil {
		return line, nil, err
	}
	return line, asset, nil
}

// Revoke 按授予记录回滚订单权益，必须在锁定订单的事务 tx 内调用
// 数量扣减到 0 为止，资产行保留
func (s *EntitlementService) Revoke(ctx context.Context, tx repository.Store, order *models.Order, now time.Time) (*models.EntitlementGrant, error) {
	grant, err := tx.Grants().Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		logger.Warn("订单没有授予记录，跳过撤销", zap.String("order_id", order.ID))
		return nil, nil
	}
	if grant.RevokedAt != nil {
		return grant, nil
	}

	user, err := tx.Users().GetForUpdate(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	for _, line := range grant.Lines {
		asset, err := tx.Assets().FindForUpdate(ctx, grant.UserID, line.AssetType, line.AssetID)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			logger.Warn("撤销时资产行不存在",
				zap.String("order_id", order.ID),
				zap.String("asset_type", string(line.AssetType)),
				zap.String("asset_id", line.AssetID))
			continue
		}

		asset.Quantity -= line.Quantity
		if asset.Quantity < 0 {
			asset.Quantity = 0
		}
		switch {
		case asset.ExpireAt == nil && line.PreviousExpireAt != nil:
			previous := *line.PreviousExpireAt
			asset.ExpireAt = &previous
		case asset.ExpireAt != nil && line.ExpiryDeltaSeconds > 0:
			reduced := asset.ExpireAt.Add(-line.ExpiryDelta())
			asset.ExpireAt = &reduced
		}
		asset.UpdatedAt = now

		if err := tx.Assets().Update(ctx, asset); err != nil {
			return nil, err
		}
	}

	if user != nil && user.MembershipExpires != nil && grant.MembershipDeltaSeconds > 0 {
		expires, err := s.membershipFromAssets(ctx, tx, user)
		if err != nil {
			return nil, err
		}
		if err := tx.Users().UpdateMembership(ctx, user.ID, expires, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Grants().MarkRevoked(ctx, order.ID, now); err != nil {
		return nil, err
	}
	revokedAt := now
	grant.RevokedAt = &revokedAt

	logger.Info("订单权益已撤销", zap.String("order_id", order.ID), zap.Uint("user_id", grant.UserID))
	return grant, nil
}

// membershipFromAssets 按剩余资产重新计算会员到期时间：取数量大于 0 的限时资产中最晚的到期时间，
// 不超过当前值；没有剩余限时资产时会员资格清空
func (s *EntitlementService) membershipFromAssets(ctx context.Context, tx repository.Store, user *models.User) (*time.Time, error) {
	assets, err := tx.Assets().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var latest *time.Time
	for _, asset := range assets {
		if asset.Quantity <= 0 || asset.ExpireAt == nil {
			continue
		}
		if latest == nil || asset.ExpireAt.After(*latest) {
			t := *asset.ExpireAt
			latest = &t
		}
	}
	if latest != nil && user.MembershipExpires.Before(*latest) {
		current := *user.MembershipExpires
		latest = &current
	}
	return latest, nil
}

// IsEntitled 判断用户在 at 时刻是否拥有有效资产
func (s *EntitlementService) IsEntitled(ctx context.Context, userID uint, assetType models.AssetType, assetID string, at time.Time) (bool, error) {
	if asset, ok := s.cache.Get(ctx, userID, assetType, assetID); ok {
		return asset != nil && asset.IsActiveAt(at), nil
	}

	version := s.cache.Version(ctx, userID, assetType, assetID)
	asset, err := s.store.Assets().Find(ctx, userID, assetType, assetID)
	if err != nil {
		return false, err
	}
	s.cache.Set(ctx, userID, assetType, assetID, asset, version)
	return asset != nil && asset.IsActiveAt(at), nil
}

// IsMember 判断用户在 at 时刻是否为会员
func (s *EntitlementService) IsMember(ctx context.Context, userID uint, at time.Time) (bool, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, apperrors.NewNotFoundError("user")
	}
	return user.IsMemberAt(at), nil
}

// ListUserAssets 获取用户全部资产（包含已过期和数量为 0 的行）
func (s *EntitlementService) ListUserAssets(ctx context.Context, userID uint) ([]*models.UserAsset, error) {
	return s.store.Assets().ListByUser(ctx, userID)
}

// GetGrant 获取订单授予记录
func (s *EntitlementService) GetGrant(ctx context.Context, orderID string) (*models.EntitlementGrant, error) {
	return s.store.Grants().Get(ctx, orderID)
}

// afterCommit 事务提交后清理缓存并记录指标
func (s *EntitlementService) afterCommit(ctx context.Context, order *models.Order, to models.OrderStatus) {
	s.cache.InvalidateOrder(ctx, order)
	switch to {
	case models.OrderStatusPaid:
		s.metrics.Granted()
	case models.OrderStatusRefunded:
		s.metrics.Revoked()
	}
}
