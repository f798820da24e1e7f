package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestDatabaseWrapper_MetricsAndHealth(t *testing.T) {
	db, mock := newMockGorm(t)
	reg := prometheus.NewRegistry()

	wrapper, err := NewDatabaseWrapper(db, newTestLogger(), reg)
	require.NoError(t, err)
	require.NotNil(t, wrapper.Metrics())

	mock.ExpectQuery(`SELECT count\(\*\) FROM "qu_orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	var count int64
	require.NoError(t, db.Table("qu_orders").Count(&count).Error)
	assert.Equal(t, int64(3), count)

	queries, err := testutil.GatherAndCount(reg, "commerce_db_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, queries)

	pool, err := testutil.GatherAndCount(reg, "commerce_db_connections")
	require.NoError(t, err)
	assert.Equal(t, 3, pool)

	mock.ExpectPing()
	require.NoError(t, wrapper.HealthCheck(context.Background()))
	assert.True(t, wrapper.GetHealthStatus().Healthy)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWrapper_WithoutRegistry(t *testing.T) {
	db, _ := newMockGorm(t)

	wrapper, err := NewDatabaseWrapper(db, newTestLogger(), nil)
	require.NoError(t, err)
	assert.Nil(t, wrapper.Metrics())
	assert.NotNil(t, wrapper.HealthChecker())
}

func TestMetricsCollector_RecordMigration(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	reg := prometheus.NewRegistry()
	mc, err := NewMetricsCollector(sqlDB, newTestLogger(), reg)
	require.NoError(t, err)

	mc.RecordMigration("up", 10*time.Millisecond, nil)
	mc.RecordQuery("query", "qu_orders", time.Millisecond, assert.AnError)

	errorsCount, err := testutil.GatherAndCount(reg, "commerce_db_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, errorsCount)
}
