package repository

import (
	"context"
	"errors"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore 基于 gorm 的仓库集合
type gormStore struct {
	db *gorm.DB
}

// NewStore 创建 gorm 仓库集合
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Orders() OrderRepository {
	return &orderRepository{db: s.db}
}

func (s *gormStore) Assets() UserAssetRepository {
	return &userAssetRepository{db: s.db}
}

func (s *gormStore) Grants() GrantRepository {
	return &grantRepository{db: s.db}
}

func (s *gormStore) PaymentEvents() PaymentEventRepository {
	return &paymentEventRepository{db: s.db}
}

func (s *gormStore) Catalog() CatalogRepository {
	return &catalogRepository{db: s.db}
}

func (s *gormStore) Users() UserRepository {
	return &userRepository{db: s.db}
}

// Transaction 在单个数据库事务中执行 fn，fn 返回错误时回滚
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// forUpdate 行级排他锁
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// first 查询单行，不存在时返回 false
func first(db *gorm.DB, dest interface{}, op string) (bool, error) {
	err := db.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewDatabaseError(op, err)
	}
	return true, nil
}
