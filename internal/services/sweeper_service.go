package services

import (
	"context"
	"sync"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	timeoutLockName   = "commerce:sweeper:order-timeout"
	analyticsLockName = "commerce:sweeper:asset-analytics"
)

// Locker 多实例部署时保证同一任务只有一个实例在执行
type Locker interface {
	// TryLock 获取锁失败时 acquired 为 false，不阻塞
	TryLock(ctx context.Context, name string) (unlock func(), acquired bool)
}

// RedisLocker 基于 redsync 的分布式锁
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), expiry: expiry}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool) {
	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1), // 只尝试一次，失败说明其他实例正在执行
	)
	if err := mutex.LockContext(ctx); err != nil {
		logger.Debug("未获取到任务锁，跳过本轮", zap.String("lock", name), zap.Error(err))
		return nil, false
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			logger.Warn("释放任务锁失败", zap.String("lock", name), zap.Error(err))
		}
	}, true
}

// LocalLocker 进程内锁，未启用 Redis 时使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, true
}

// SweeperService 定时任务：取消超时未支付订单，统计资产有效性
// 权益过期本身是查询时惰性判定的，这里不修改任何资产行
type SweeperService struct {
	store          repository.Store
	orders         *OrderService
	locker         Locker
	metrics        *CommerceMetrics
	cfg            config.SweeperConfig
	paymentTimeout time.Duration
	cron           *cron.Cron
	now            func() time.Time
}

// NewSweeperService 创建定时任务服务，locker 为 nil 时使用进程内锁
func NewSweeperService(store repository.Store, orders *OrderService, locker Locker, metrics *CommerceMetrics, cfg *config.Config) *SweeperService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &SweeperService{
		store:          store,
		orders:         orders,
		locker:         locker,
		metrics:        metrics,
		cfg:            cfg.Sweeper,
		paymentTimeout: cfg.Order.PaymentTimeout,
		now:            time.Now,
	}
}

// SetClock 替换时间源
func (s *SweeperService) SetClock(now func() time.Time) {
	s.now = now
}

// CancelExpiredOrders 取消创建时间超过支付超时的待支付订单
// 与迟到的支付回调竞争失败（订单已支付）不算错误
func (s *SweeperService) CancelExpiredOrders(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.paymentTimeout)
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 200
	}

	orders, err := s.store.Orders().ListPendingBefore(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var firstErr error
	for _, order := range orders {
		updated, err := s.orders.Transition(ctx, order.ID, models.OrderStatusCancelled, now)
		switch {
		case err == nil:
			if updated.Status == models.OrderStatusCancelled {
				cancelled++
			}
		case apperrors.GetAppError(err).Code == apperrors.ErrCodeIllegalTransition:
			logger.Info("订单已被支付，跳过超时取消", zap.String("order_id", order.ID))
		default:
			logger.Error("超时取消订单失败", zap.String("order_id", order.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.metrics.OrdersTimedOut(cancelled)
	if cancelled > 0 {
		logger.Info("超时订单已取消", zap.Int("count", cancelled), zap.Time("cutoff", cutoff))
	}
	return cancelled, firstErr
}

// RecordExpiryStats 统计当前有效、已过期、数量耗尽的资产数量
func (s *SweeperService) RecordExpiryStats(ctx context.Context) (repository.AssetExpiryStats, error) {
	stats, err := s.store.Assets().CountByExpiry(ctx, s.now())
	if err != nil {
		return stats, err
	}
	s.metrics.SetAssetStats(stats)
	logger.Debug("资产有效性统计",
		zap.Int64("active", stats.Active),
		zap.Int64("expired", stats.Expired),
		zap.Int64("depleted", stats.Depleted))
	return stats, nil
}

// runLocked 获取锁后执行任务，未获取到锁时跳过
func (s *SweeperService) runLocked(name string, task func(ctx context.Context) error) {
	timeout := s.cfg.LockExpiry
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	unlock, ok := s.locker.TryLock(ctx, name)
	if !ok {
		return
	}
	defer unlock()

	if err := task(ctx); err != nil {
		logger.Error("定时任务执行失败", zap.String("task", name), zap.Error(err))
	}
}

// Start 启动定时任务
func (s *SweeperService) Start() error {
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := c.AddFunc(s.cfg.TimeoutSpec, func() {
		s.runLocked(timeoutLockName, func(ctx context.Context) error {
			_, err := s.CancelExpiredOrders(ctx)
			return err
		})
	}); err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "invalid timeout sweep schedule").WithCause(err)
	}

	if _, err := c.AddFunc(s.cfg.AnalyticsSpec, func() {
		s.runLocked(analyticsLockName, func(ctx context.Context) error {
			_, err := s.RecordExpiryStats(ctx)
			return err
		})
	}); err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "invalid analytics sweep schedule").WithCause(err)
	}

	c.Start()
	s.cron = c
	logger.Info("定时任务已启动",
		zap.String("timeout_spec", s.cfg.TimeoutSpec),
		zap.String("analytics_spec", s.cfg.AnalyticsSpec))
	return nil
}

// Stop 停止定时任务并等待正在执行的任务结束
func (s *SweeperService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	logger.Info("定时任务已停止")
}
