package models

import (
	"time"

	"gorm.io/datatypes"
)

// GrantLine 单个资产的授予明细，退款时按此回滚
// 授予把有期限资产变为永久时 PreviousExpireAt 记录原到期时间
type GrantLine struct {
	AssetType          AssetType  `json:"asset_type"`
	AssetID            string     `json:"asset_id"`
	Quantity           int        `json:"quantity"`
	ExpiryDeltaSeconds int64      `json:"expiry_delta_seconds"`
	PreviousExpireAt   *time.Time `json:"previous_expire_at,omitempty"`
}

// ExpiryDelta 有效期增量
func (l GrantLine) ExpiryDelta() time.Duration {
	return time.Duration(l.ExpiryDeltaSeconds) * time.Second
}

// EntitlementGrant 订单授予记录，每个订单至多一条
type EntitlementGrant struct {
	OrderID                string                         `gorm:"primaryKey;column:order_id;size:32" json:"order_id"`
	UserID                 uint                           `gorm:"column:user_id;not null;index" json:"user_id"`
	Lines                  datatypes.JSONSlice[GrantLine] `gorm:"type:jsonb" json:"lines"`
	MembershipDeltaSeconds int64                          `gorm:"column:membership_delta_seconds;not null;default:0" json:"membership_delta_seconds"`
	GrantedAt              time.Time                      `gorm:"column:granted_at;not null" json:"granted_at"`
	RevokedAt              *time.Time                     `gorm:"column:revoked_at" json:"revoked_at"`
}

func (EntitlementGrant) TableName() string {
	return "qu_entitlement_grants"
}

// Clone 深拷贝
func (g *EntitlementGrant) Clone() *EntitlementGrant {
	c := *g
	c.Lines = append(datatypes.JSONSlice[GrantLine](nil), g.Lines...)
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
