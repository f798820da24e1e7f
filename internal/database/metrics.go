package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const metricsStartKey = "metrics:start"

// MetricsCollector 数据库指标收集器：连接池状态按抓取时读取，查询耗时通过 gorm 回调记录
type MetricsCollector struct {
	db     *sql.DB
	logger *logrus.Logger

	connectionsDesc *prometheus.Desc
	waitCountDesc   *prometheus.Desc
	waitSecondsDesc *prometheus.Desc

	dbQueriesCounter *prometheus.CounterVec
	dbQueryDuration  *prometheus.HistogramVec
	dbErrorsCounter  *prometheus.CounterVec
}

// NewMetricsCollector 创建并注册指标收集器
func NewMetricsCollector(db *sql.DB, logger *logrus.Logger, reg prometheus.Registerer) (*MetricsCollector, error) {
	mc := &MetricsCollector{
		db:     db,
		logger: logger,
		connectionsDesc: prometheus.NewDesc(
			"commerce_db_connections",
			"Number of database connections in different states",
			[]string{"state"}, nil,
		),
		waitCountDesc: prometheus.NewDesc(
			"commerce_db_wait_count_total",
			"Total number of connections waited for",
			nil, nil,
		),
		waitSecondsDesc: prometheus.NewDesc(
			"commerce_db_wait_duration_seconds_total",
			"Total time blocked waiting for a new connection",
			nil, nil,
		),
	}

	factory := promauto.With(reg)
	mc.dbQueriesCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"operation", "table", "status"},
	)
	mc.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commerce_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
	mc.dbErrorsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)

	if reg != nil {
		if err := reg.Register(mc); err != nil {
			return nil, err
		}
	}
	return mc, nil
}

// Describe 实现 prometheus.Collector
func (mc *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.connectionsDesc
	ch <- mc.waitCountDesc
	ch <- mc.waitSecondsDesc
}

// Collect 实现 prometheus.Collector，抓取时读取连接池统计
func (mc *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := mc.db.Stats()

	ch <- prometheus.MustNewConstMetric(mc.connectionsDesc, prometheus.GaugeValue, float64(stats.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(mc.connectionsDesc, prometheus.GaugeValue, float64(stats.InUse), "in_use")
	ch <- prometheus.MustNewConstMetric(mc.connectionsDesc, prometheus.GaugeValue, float64(stats.OpenConnections), "open")
	ch <- prometheus.MustNewConstMetric(mc.waitCountDesc, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(mc.waitSecondsDesc, prometheus.CounterValue, stats.WaitDuration.Seconds())

	mc.logger.WithFields(logrus.Fields{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
		"wait":   stats.WaitCount,
	}).Debug("Database connection pool stats collected")
}

// RegisterCallbacks 在 gorm 上挂载查询耗时回调
func (mc *MetricsCollector) RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{"create",
			func(n string) error { return cb.Create().Before("gorm:create").Register(n, mc.before) },
			func(n string) error { return cb.Create().After("gorm:create").Register(n, mc.after("create")) }},
		{"query",
			func(n string) error { return cb.Query().Before("gorm:query").Register(n, mc.before) },
			func(n string) error { return cb.Query().After("gorm:query").Register(n, mc.after("query")) }},
		{"update",
			func(n string) error { return cb.Update().Before("gorm:update").Register(n, mc.before) },
			func(n string) error { return cb.Update().After("gorm:update").Register(n, mc.after("update")) }},
		{"delete",
			func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, mc.before) },
			func(n string) error { return cb.Delete().After("gorm:delete").Register(n, mc.after("delete")) }},
	}
	for _, s := range steps {
		if err := s.before("metrics:before_" + s.op); err != nil {
			return err
		}
		if err := s.after("metrics:after_" + s.op); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MetricsCollector) before(tx *gorm.DB) {
	tx.InstanceSet(metricsStartKey, time.Now())
}

func (mc *MetricsCollector) after(op string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(metricsStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		err := tx.Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = nil
		}
		mc.RecordQuery(op, tx.Statement.Table, time.Since(start), err)
	}
}

// RecordQuery 记录查询操作
func (mc *MetricsCollector) RecordQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		mc.dbErrorsCounter.WithLabelValues(operation, "query_error").Inc()
	}

	mc.dbQueriesCounter.WithLabelValues(operation, table, status).Inc()
	mc.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordMigration 记录迁移操作
func (mc *MetricsCollector) RecordMigration(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		mc.dbErrorsCounter.WithLabelValues("migration", "migration_error").Inc()
	}

	mc.dbQueriesCounter.WithLabelValues("migration", operation, status).Inc()
	if err == nil {
		mc.dbQueryDuration.WithLabelValues("migration", operation).Observe(duration.Seconds())
	}
}

// GetStats 获取当前连接池统计信息
func (mc *MetricsCollector) GetStats() sql.DBStats {
	return mc.db.Stats()
}
