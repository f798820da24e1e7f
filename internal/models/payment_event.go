package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent 已验签并归一化的网关回调事件
type PaymentEvent struct {
	OrderID              string           `json:"order_id" validate:"required,max=32"`
	PaidAmount           string           `json:"paid_amount" validate:"required,numeric"`
	GatewayTransactionID string           `json:"gateway_transaction_id" validate:"required,max=64"`
	EventType            PaymentEventType `json:"event_type" validate:"required,oneof=PAYMENT REFUND"`
	PaymentMethod        PaymentMethod    `json:"payment_method,omitempty" validate:"omitempty,oneof=alipay wechatpay"`
	OccurredAt           *time.Time       `json:"occurred_at,omitempty"`
}

// ReconcileOutcome 对账结果
type ReconcileOutcome string

const (
	OutcomeApplied        ReconcileOutcome = "APPLIED"
	OutcomeAlreadyApplied ReconcileOutcome = "ALREADY_APPLIED"
)

// ReconcileResult 对账处理结果
type ReconcileResult struct {
	OrderID              string           `json:"order_id"`
	GatewayTransactionID string           `json:"gateway_transaction_id"`
	EventType            PaymentEventType `json:"event_type"`
	Outcome              ReconcileOutcome `json:"outcome"`
	Status               OrderStatus      `json:"status"`
	Duplicate            bool             `json:"duplicate"`
	ProcessedAt          time.Time        `json:"processed_at"`
}

// PaymentEventRecord 网关交易幂等记录
type PaymentEventRecord struct {
	GatewayTransactionID string           `gorm:"primaryKey;column:gateway_transaction_id;size:64" json:"gateway_transaction_id"`
	OrderID              string           `gorm:"column:order_id;size:32;not null;index" json:"order_id"`
	EventType            PaymentEventType `gorm:"column:event_type;size:16;not null" json:"event_type"`
	PaymentMethod        PaymentMethod    `gorm:"column:payment_method;size:16" json:"payment_method"`
	PaidAmount           decimal.Decimal  `gorm:"column:paid_amount;type:numeric(12,2);not null" json:"paid_amount"`
	Outcome              ReconcileOutcome `gorm:"size:20;not null" json:"outcome"`
	ResultStatus         OrderStatus      `gorm:"column:result_status;size:16;not null" json:"result_status"`
	ProcessedAt          time.Time        `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (PaymentEventRecord) TableName() string {
	return "qu_payment_events"
}

// ToResult 从幂等记录还原处理结果
func (r *PaymentEventRecord) ToResult() *ReconcileResult {
	return &ReconcileResult{
		OrderID:              r.OrderID,
		GatewayTransactionID: r.GatewayTransactionID,
		EventType:            r.EventType,
		Outcome:              r.Outcome,
		Status:               r.ResultStatus,
		ProcessedAt:          r.ProcessedAt,
	}
}
