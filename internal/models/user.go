package models

import (
	"time"
)

// User 用户表，密码由认证模块加密后写入
type User struct {
	ID                uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username          string     `gorm:"size:50" json:"username"`
	Phone             string     `gorm:"size:11;index" json:"phone"`
	Password          string     `gorm:"size:100" json:"-"`
	MembershipExpires *time.Time `gorm:"column:membership_expires" json:"membership_expires"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "qu_users"
}

// IsMemberAt 会员是否在指定时刻有效
func (u *User) IsMemberAt(at time.Time) bool {
	return u.MembershipExpires != nil && u.MembershipExpires.After(at)
}
