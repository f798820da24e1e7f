package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DatabaseWrapper 数据库包装器，组合连接、健康检查和指标
type DatabaseWrapper struct {
	db            *gorm.DB
	sqlDB         *sql.DB
	healthChecker *HealthChecker
	metrics       *MetricsCollector
}

// NewDatabaseWrapper 包装已打开的 gorm 连接，reg 为 nil 时不导出指标
func NewDatabaseWrapper(db *gorm.DB, logger *logrus.Logger, reg prometheus.Registerer) (*DatabaseWrapper, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	wrapper := &DatabaseWrapper{
		db:            db,
		sqlDB:         sqlDB,
		healthChecker: NewHealthChecker(sqlDB, logger),
	}

	if reg != nil {
		metrics, err := NewMetricsCollector(sqlDB, logger, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register database metrics: %w", err)
		}
		if err := metrics.RegisterCallbacks(db); err != nil {
			return nil, fmt.Errorf("failed to register gorm callbacks: %w", err)
		}
		wrapper.metrics = metrics
	}

	return wrapper, nil
}

// GetDB 获取数据库连接
func (d *DatabaseWrapper) GetDB() *gorm.DB {
	return d.db
}

// HealthChecker 获取健康检查器
func (d *DatabaseWrapper) HealthChecker() *HealthChecker {
	return d.healthChecker
}

// Metrics 获取指标收集器，未启用时为 nil
func (d *DatabaseWrapper) Metrics() *MetricsCollector {
	return d.metrics
}

// Close 关闭数据库连接
func (d *DatabaseWrapper) Close() error {
	d.healthChecker.Stop()
	return d.sqlDB.Close()
}

// HealthCheck 同步健康检查
func (d *DatabaseWrapper) HealthCheck(ctx context.Context) error {
	return d.healthChecker.Check(ctx)
}

// StartMonitoring 启动后台健康检查
func (d *DatabaseWrapper) StartMonitoring(ctx context.Context) {
	d.healthChecker.Start(ctx)
}

// GetHealthStatus 获取健康状态
func (d *DatabaseWrapper) GetHealthStatus() HealthCheckResult {
	return d.healthChecker.GetHealthResult()
}
