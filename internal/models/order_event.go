package models

import (
	"time"
)

// OrderEvent 订单状态变更事件，提交后发布到消息队列
type OrderEvent struct {
	OrderID              string      `json:"order_id"`
	UserID               uint        `json:"user_id"`
	From                 OrderStatus `json:"from"`
	To                   OrderStatus `json:"to"`
	Amount               string      `json:"amount"`
	GatewayTransactionID string      `json:"gateway_transaction_id,omitempty"`
	OccurredAt           time.Time   `json:"occurred_at"`
}

// AllModels 需要自动迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&DifyApp{},
		&Course{},
		&CourseSection{},
		&Order{},
		&UserAsset{},
		&PaymentEventRecord{},
		&EntitlementGrant{},
	}
}
