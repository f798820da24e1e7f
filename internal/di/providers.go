package di

import (
	"fmt"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/aihub/commerce-go/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Infrastructure 启动流程创建并负责关闭的外部资源，Redis、Publisher、Registerer 可为空
type Infrastructure struct {
	Config     *config.Config
	Store      repository.Store
	Redis      *redis.Client
	Publisher  services.OrderEventPublisher
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, infra Infrastructure) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := infra.Config
		if cfg == nil {
			cfg = config.GetAppConfig()
		}
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册基础设施
	if err := container.Provide(func() (repository.Store, error) {
		if infra.Store == nil {
			return nil, fmt.Errorf("repository store not provided")
		}
		return infra.Store, nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func() *redis.Client { return infra.Redis }); err != nil {
		return err
	}

	if err := container.Provide(func() services.OrderEventPublisher {
		if infra.Publisher == nil {
			return services.NoopEventPublisher{}
		}
		return services.NewBreakingPublisher(infra.Publisher, services.NewCircuitBreaker("order-events", 5, 1, 30*time.Second))
	}); err != nil {
		return err
	}

	if err := container.Provide(func() *zap.Logger {
		if infra.Logger == nil {
			return logger.GetLogger()
		}
		return infra.Logger
	}); err != nil {
		return err
	}

	// 注册指标
	if err := container.Provide(func() *services.CommerceMetrics {
		return services.NewCommerceMetrics(infra.Registerer)
	}); err != nil {
		return err
	}

	if err := container.Provide(func() *apperrors.ErrorMonitor {
		return apperrors.NewErrorMonitor(infra.Registerer)
	}); err != nil {
		return err
	}

	// 注册服务
	if err := container.Provide(func(cfg *config.Config) *services.CatalogService {
		return services.NewCatalogService(cfg.Entitlement)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, rdb *redis.Client) *services.EntitlementCache {
		return services.NewEntitlementCache(rdb, cfg.Entitlement.CacheTTL)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, rdb *redis.Client) services.Locker {
		if rdb == nil {
			return services.NewLocalLocker()
		}
		return services.NewRedisLocker(rdb, cfg.Sweeper.LockExpiry)
	}); err != nil {
		return err
	}

	constructors := []interface{}{
		services.NewEntitlementService,
		services.NewOrderService,
		services.NewPaymentReconciler,
		services.NewSweeperService,
		apperrors.NewErrorHandler,
	}
	for _, constructor := range constructors {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}

	return nil
}

// Services 对外暴露的服务集合
type Services struct {
	dig.In

	Orders       *services.OrderService
	Reconciler   *services.PaymentReconciler
	Entitlements *services.EntitlementService
	Sweeper      *services.SweeperService
	Metrics      *services.CommerceMetrics
	ErrorHandler *apperrors.ErrorHandler
}

// ResolveServices 从容器中解析全部服务
func ResolveServices(container *dig.Container) (*Services, error) {
	var resolved *Services
	err := container.Invoke(func(s Services) {
		resolved = &s
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
