package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedAsset 缓存的资产快照，Present 为 false 表示用户没有该资产
type cachedAsset struct {
	Present  bool       `json:"present"`
	Quantity int        `json:"quantity"`
	ExpireAt *time.Time `json:"expire_at,omitempty"`
}

// errStaleSnapshot 读取数据库期间快照已被清除，放弃回填
var errStaleSnapshot = errors.New("entitlement snapshot is stale")

// EntitlementCache 用户资产快照的 Redis 旁路缓存
// 缓存的是行数据而不是判定结果，有效性仍按查询时间计算
// 每个键带一个版本号，清除时递增；回填只在版本未变时写入
type EntitlementCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEntitlementCache 创建缓存，client 为 nil 或 ttl<=0 时缓存关闭
func NewEntitlementCache(client *redis.Client, ttl time.Duration) *EntitlementCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &EntitlementCache{client: client, ttl: ttl}
}

func entitlementKey(userID uint, assetType models.AssetType, assetID string) string {
	return fmt.Sprintf("entitlement:%d:%s:%s", userID, assetType, assetID)
}

func versionKey(key string) string {
	return key + ":ver"
}

// Get 读取快照，未命中或出错时 ok 为 false
func (c *EntitlementCache) Get(ctx context.Context, userID uint, assetType models.AssetType, assetID string) (*models.UserAsset, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, entitlementKey(userID, assetType, assetID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取权益缓存失败", zap.Uint("user_id", userID), zap.String("asset_id", assetID), zap.Error(err))
		}
		return nil, false
	}

	var snapshot cachedAsset
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	if !snapshot.Present {
		return nil, true
	}
	return &models.UserAsset{
		UserID:    userID,
		AssetType: assetType,
		AssetID:   assetID,
		Quantity:  snapshot.Quantity,
		ExpireAt:  snapshot.ExpireAt,
	}, true
}

// Version 读取键的当前版本，必须在查询数据库之前调用；读取失败返回 -1，此时不回填
func (c *EntitlementCache) Version(ctx context.Context, userID uint, assetType models.AssetType, assetID string) int64 {
	if c == nil {
		return -1
	}
	version, err := c.client.Get(ctx, versionKey(entitlementKey(userID, assetType, assetID))).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("读取权益缓存版本失败", zap.Uint("user_id", userID), zap.String("asset_id", assetID), zap.Error(err))
		return -1
	}
	return version
}

// Set 写入快照，asset 为 nil 时缓存“无资产”
// version 与当前版本不一致说明期间发生过清除，快照可能已过期，直接丢弃
func (c *EntitlementCache) Set(ctx context.Context, userID uint, assetType models.AssetType, assetID string, asset *models.UserAsset, version int64) {
	if c == nil || version < 0 {
		return
	}
	snapshot := cachedAsset{}
	if asset != nil {
		snapshot = cachedAsset{Present: true, Quantity: asset.Quantity, ExpireAt: asset.ExpireAt}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	key := entitlementKey(userID, assetType, assetID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(key)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, versionKey(key))

	switch {
	case err == nil:
	case errors.Is(err, errStaleSnapshot), errors.Is(err, redis.TxFailedErr):
		logger.Debug("权益快照已过期，放弃回填", zap.Uint("user_id", userID), zap.String("asset_id", assetID))
	default:
		logger.Warn("写入权益缓存失败", zap.Uint("user_id", userID), zap.String("asset_id", assetID), zap.Error(err))
	}
}

// InvalidateOrder 删除订单涉及的全部资产快照并递增版本
func (c *EntitlementCache) InvalidateOrder(ctx context.Context, order *models.Order) {
	if c == nil || order == nil || len(order.Items) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range order.Items {
			key := entitlementKey(order.UserID, item.AssetType, item.AssetID)
			pipe.Del(ctx, key)
			pipe.Incr(ctx, versionKey(key))
			pipe.Expire(ctx, versionKey(key), c.ttl)
		}
		return nil
	})
	if err != nil {
		logger.Warn("清除权益缓存失败", zap.String("order_id", order.ID), zap.Error(err))
	}
}
