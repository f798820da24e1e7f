package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// MigrationManagerFactory 迁移管理器工厂
type MigrationManagerFactory struct {
	migrationPath string
	logger        *logrus.Logger
}

// NewMigrationManagerFactory 创建迁移管理器工厂，相对目录转换为绝对路径
func NewMigrationManagerFactory(migrationPath string, logger *logrus.Logger) *MigrationManagerFactory {
	if migrationPath == "" {
		migrationPath = "internal/database/migrations"
	}

	if !strings.Contains(migrationPath, "://") {
		if absPath, err := filepath.Abs(migrationPath); err == nil {
			migrationPath = absPath
		}
	}

	return &MigrationManagerFactory{
		migrationPath: migrationPath,
		logger:        logger,
	}
}

// CreateManager 基于已有连接创建迁移管理器
func (f *MigrationManagerFactory) CreateManager(db *sql.DB) (*MigrationManager, error) {
	return NewMigrationManager(db, f.migrationPath, f.logger)
}

// Open 使用 lib/pq 打开独立连接并创建迁移管理器，调用方负责关闭返回的 sql.DB
func (f *MigrationManagerFactory) Open(dbURL string) (*MigrationManager, *sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	mm, err := f.CreateManager(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mm, db, nil
}

// GetMigrationPath 获取迁移文件路径
func (f *MigrationManagerFactory) GetMigrationPath() string {
	return f.migrationPath
}
