package repository

import (
	"context"

	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// catalogRepository 商品目录仓库实现
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建商品目录仓库
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// GetApp 获取应用
func (r *catalogRepository) GetApp(ctx context.Context, id string) (*models.DifyApp, error) {
	var app models.DifyApp
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &app, "get app")
	if err != nil || !found {
		return nil, err
	}
	return &app, nil
}

// GetCourse 获取课程
func (r *catalogRepository) GetCourse(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &course, "get course")
	if err != nil || !found {
		return nil, err
	}
	return &course, nil
}
