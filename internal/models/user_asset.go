package models

import (
	"time"
)

// UserAsset 用户资产表，(user_id, asset_type, asset_id) 唯一
type UserAsset struct {
	ID        uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint         `gorm:"column:user_id;not null;uniqueIndex:uk_user_asset,priority:1" json:"user_id"`
	AssetType AssetType    `gorm:"column:asset_type;size:16;not null;uniqueIndex:uk_user_asset,priority:2" json:"asset_type"`
	AppMode   *DifyAppMode `gorm:"column:app_mode;size:20" json:"app_mode,omitempty"`
	AssetID   string       `gorm:"column:asset_id;size:64;not null;uniqueIndex:uk_user_asset,priority:3" json:"asset_id"`
	AssetName string       `gorm:"column:asset_name" json:"asset_name"`
	Quantity  int          `gorm:"not null;default:1" json:"quantity"`
	ExpireAt  *time.Time   `gorm:"column:expire_at;index" json:"expire_at"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (UserAsset) TableName() string {
	return "qu_user_assets"
}

// IsActiveAt 数量大于零且未过期（ExpireAt 为空表示永久）
func (a *UserAsset) IsActiveAt(at time.Time) bool {
	if a.Quantity <= 0 {
		return false
	}
	return a.ExpireAt == nil || a.ExpireAt.After(at)
}

// Clone 深拷贝
func (a *UserAsset) Clone() *UserAsset {
	c := *a
	if a.ExpireAt != nil {
		t := *a.ExpireAt
		c.ExpireAt = &t
	}
	if a.AppMode != nil {
		m := *a.AppMode
		c.AppMode = &m
	}
	return &c
}
