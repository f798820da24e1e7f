package services

import (
	"github.com/aihub/commerce-go/internal/models"
)

// OrderStateMachine 订单状态机
type OrderStateMachine struct{}

// NewOrderStateMachine 创建订单状态机实例
func NewOrderStateMachine() *OrderStateMachine {
	return &OrderStateMachine{}
}

// 状态转换规则，副作用由 OrderService.applyTransition 执行
//
//	PENDING -> PAID       设置支付时间并授予权益
//	PENDING -> CANCELLED  无
//	PAID    -> REFUNDED   撤销权益
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:    {models.OrderStatusRefunded},
}

// CanTransition 检查是否可以进行状态转换
func (sm *OrderStateMachine) CanTransition(from, to models.OrderStatus) bool {
	for _, target := range orderTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再有出边
func (sm *OrderStateMachine) IsTerminal(status models.OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

// NextStatuses 当前状态允许的目标状态
func (sm *OrderStateMachine) NextStatuses(from models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), orderTransitions[from]...)
}
