package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderItem 订单项，UnitPrice 为精确十进制字符串
type OrderItem struct {
	AssetType    AssetType    `json:"asset_type"`
	AssetID      string       `json:"asset_id"`
	Quantity     int          `json:"quantity"`
	UnitPrice    string       `json:"unit_price"`
	BillingCycle BillingCycle `json:"billing_cycle,omitempty"`
}

// Subtotal 小计
func (i OrderItem) Subtotal() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(i.UnitPrice)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(decimal.NewFromInt(int64(i.Quantity))), nil
}

// Order 订单表
type Order struct {
	ID             string                         `gorm:"primaryKey;size:32" json:"id"`
	UserID         uint                           `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount         decimal.Decimal                `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status         OrderStatus                    `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	PaymentMethod  PaymentMethod                  `gorm:"column:payment_method;size:16;not null" json:"payment_method"`
	PayTime        *time.Time                     `gorm:"column:pay_time" json:"pay_time"`
	GatewayTradeNo string                         `gorm:"column:gateway_trade_no;size:64" json:"gateway_trade_no,omitempty"`
	Items          datatypes.JSONSlice[OrderItem] `gorm:"type:jsonb" json:"items"`
	CreatedAt      time.Time                      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt      time.Time                      `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "qu_orders"
}

// Clone 深拷贝订单
func (o *Order) Clone() *Order {
	c := *o
	if o.PayTime != nil {
		t := *o.PayTime
		c.PayTime = &t
	}
	c.Items = append(datatypes.JSONSlice[OrderItem](nil), o.Items...)
	return &c
}
