package bootstrap

import (
	"context"
	"log"

	"github.com/aihub/commerce-go/internal/config"
	"github.com/aihub/commerce-go/internal/database"
	"github.com/aihub/commerce-go/internal/di"
	"github.com/aihub/commerce-go/internal/kafka"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/aihub/commerce-go/internal/services"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Container *dig.Container
	Services  *di.Services
	Registry  *prometheus.Registry
	Database  *database.DatabaseWrapper

	cleanupTasks []func() error
	cancel       context.CancelFunc
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load dynamic configuration.
	loader := config.NewConfigLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	config.SetAppConfig(cfg)

	// Initialize structured logger.
	if err := logger.InitWithOptions(logger.Options{Env: cfg.Server.Env, Level: cfg.Server.LogLevel}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		cancel:   cancel,
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 配置热更新只记录日志，连接类配置需要重启生效
	loader.RegisterCallback(func(oldConfig, newConfig *config.Config) {
		logger.Info("Configuration reloaded",
			zap.Duration("payment_timeout", newConfig.Order.PaymentTimeout),
			zap.Bool("alipay_enabled", newConfig.Payment.Alipay.Enabled),
			zap.Bool("wechatpay_enabled", newConfig.Payment.WeChatPay.Enabled))
	})
	if err := loader.StartWatching(); err != nil {
		logger.Warn("Failed to watch config file", zap.Error(err))
	}

	// Initialize database.
	db, err := database.InitDB()
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	dbLogger := logrus.New()
	dbLogger.SetFormatter(&logrus.JSONFormatter{})
	wrapper, err := database.NewDatabaseWrapper(db, dbLogger, app.Registry)
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.Database = wrapper

	// Initialize Redis (optional). Failure shouldn't block the app.
	var rdb *redis.Client
	if client, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else if client != nil {
		rdb = client
		wrapper.HealthChecker().AddComponent("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
	}

	wrapper.StartMonitoring(ctx)
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		wrapper.HealthChecker().Stop()
		return nil
	})

	// Initialize Kafka producer (optional). Failure shouldn't block the app.
	var producer *kafka.Producer
	var publisher services.OrderEventPublisher
	if cfg.Kafka.Enabled {
		if p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderEventTopic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			producer = p
			publisher = p
			app.cleanupTasks = append(app.cleanupTasks, p.Close)
		}
	}

	// Wire services.
	app.Container, err = di.NewContainer(di.Infrastructure{
		Config:     cfg,
		Store:      repository.NewStore(db),
		Redis:      rdb,
		Publisher:  publisher,
		Registerer: app.Registry,
		Logger:     logger.GetLogger(),
	})
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.Services, err = di.ResolveServices(app.Container)
	if err != nil {
		app.Shutdown()
		return nil, err
	}

	// 启动支付事件消费者
	if cfg.Kafka.Enabled && cfg.Kafka.PaymentEventTopic != "" {
		var retry kafka.RetryPublisher
		if producer != nil {
			retry = producer
		}
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.PaymentEventTopic}, retry)
		if err != nil {
			logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
		} else {
			consumer.RegisterHandler(cfg.Kafka.PaymentEventTopic, kafka.NewPaymentEventHandler(app.Services.Reconciler))
			consumer.Start()
			app.cleanupTasks = append(app.cleanupTasks, consumer.Close)
		}
	}

	// 启动定时任务
	if cfg.Sweeper.Enabled {
		if err := app.Services.Sweeper.Start(); err != nil {
			app.Shutdown()
			return nil, err
		}
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			app.Services.Sweeper.Stop()
			return nil
		})
	}

	SetGlobalApp(app)
	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	a.cleanupTasks = nil

	// Flush logger buffers.
	logger.Sync()
}
