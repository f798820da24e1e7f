package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RedisClient *redis.Client

// InitRedis 使用全局配置初始化 Redis，未启用时返回 nil
func InitRedis() (*redis.Client, error) {
	cfg := config.GetAppConfig()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, entitlement cache and sweeper lock are off")
		return nil, nil
	}

	rdb, err := NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		return nil, err
	}

	RedisClient = rdb
	logger.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))
	return rdb, nil
}

// NewRedisClient 创建客户端并测试连接
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// CloseRedis 关闭全局客户端
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Close()
}
