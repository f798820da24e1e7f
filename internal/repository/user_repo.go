package repository

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"gorm.io/gorm"
)

// userRepository 用户仓库实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID 获取用户
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	found, err := first(r.db.WithContext(ctx).Where("id = ?", id), &user, "get user")
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// GetForUpdate 加锁获取用户，同一用户的授予操作串行
func (r *userRepository) GetForUpdate(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	found, err := first(forUpdate(r.db.WithContext(ctx)).Where("id = ?", id), &user, "lock user")
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// UpdateMembership 更新会员到期时间
func (r *userRepository) UpdateMembership(ctx context.Context, userID uint, expires *time.Time, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"membership_expires": expires,
			"updated_at":         at,
		})
	if result.Error != nil {
		return apperrors.NewDatabaseError("update membership", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}
