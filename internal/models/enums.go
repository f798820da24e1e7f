package models

import (
	apperrors "github.com/aihub/commerce-go/internal/errors"
)

// AssetType 资产类型
type AssetType string

const (
	AssetTypeApp    AssetType = "app"
	AssetTypeCourse AssetType = "course"
)

// ParseAssetType 严格解析资产类型
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(s) {
	case AssetTypeApp, AssetTypeCourse:
		return AssetType(s), nil
	}
	return "", apperrors.NewInvalidInputError("asset_type", "unknown asset type "+s)
}

// DifyAppMode Dify应用模式
type DifyAppMode string

const (
	AppModeChat       DifyAppMode = "chat"
	AppModeAgentChat  DifyAppMode = "agent-chat"
	AppModeWorkflow   DifyAppMode = "workflow"
	AppModeCompletion DifyAppMode = "completion"
)

// ParseDifyAppMode 严格解析应用模式
func ParseDifyAppMode(s string) (DifyAppMode, error) {
	switch DifyAppMode(s) {
	case AppModeChat, AppModeAgentChat, AppModeWorkflow, AppModeCompletion:
		return DifyAppMode(s), nil
	}
	return "", apperrors.NewInvalidInputError("mode", "unknown app mode "+s)
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 待支付
	OrderStatusPaid      OrderStatus = "PAID"      // 已支付
	OrderStatusCancelled OrderStatus = "CANCELLED" // 已取消
	OrderStatusRefunded  OrderStatus = "REFUNDED"  // 已退款
)

// AllOrderStatuses 全部订单状态
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ParseOrderStatus 严格解析订单状态
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled, OrderStatusRefunded:
		return OrderStatus(s), nil
	}
	return "", apperrors.NewInvalidInputError("status", "unknown order status "+s)
}

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentMethodAlipay    PaymentMethod = "alipay"
	PaymentMethodWechatPay PaymentMethod = "wechatpay"
)

// ParsePaymentMethod 严格解析支付方式
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodAlipay, PaymentMethodWechatPay:
		return PaymentMethod(s), nil
	}
	return "", apperrors.NewInvalidInputError("payment_method", "unknown payment method "+s)
}

// PaymentEventType 支付事件类型
type PaymentEventType string

const (
	PaymentEventPayment PaymentEventType = "PAYMENT"
	PaymentEventRefund  PaymentEventType = "REFUND"
)

// ParsePaymentEventType 严格解析支付事件类型
func ParsePaymentEventType(s string) (PaymentEventType, error) {
	switch PaymentEventType(s) {
	case PaymentEventPayment, PaymentEventRefund:
		return PaymentEventType(s), nil
	}
	return "", apperrors.NewInvalidInputError("event_type", "unknown payment event type "+s)
}

// BillingCycle 应用计费周期
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// ParseBillingCycle 严格解析计费周期，空值按月付处理
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(s) {
	case "":
		return BillingCycleMonthly, nil
	case BillingCycleMonthly, BillingCycleYearly:
		return BillingCycle(s), nil
	}
	return "", apperrors.NewInvalidInputError("billing_cycle", "unknown billing cycle "+s)
}
