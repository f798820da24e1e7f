package controllers

import (
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/services"
)

// PaymentController 支付回调控制器，接收网关适配层验签后的事件
type PaymentController struct {
	BaseController
	Reconciler *services.PaymentReconciler
}

// PaymentEvent 处理支付或退款事件
// 重放的事件返回首次处理结果，duplicate 为 true
// 失败时附带 disposition，适配层据此决定是否向网关确认以及是否告警
func (c *PaymentController) PaymentEvent() {
	var event models.PaymentEvent
	if err := c.decodeBody(&event); err != nil {
		c.rejectEvent(err)
		return
	}

	result, err := c.Reconciler.HandlePaymentEvent(c.Ctx.Request.Context(), &event)
	if err != nil {
		c.rejectEvent(err)
		return
	}
	c.JSONSuccess(result)
}

func (c *PaymentController) rejectEvent(err error) {
	c.jsonAppError(err, map[string]interface{}{
		"disposition": services.ClassifyReconcileError(err),
	})
}
