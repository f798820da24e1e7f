package controllers

import (
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/services"
)

// OrderController 订单控制器
type OrderController struct {
	BaseController
	Orders *services.OrderService
}

type createOrderRequest struct {
	PaymentMethod string             `json:"payment_method" validate:"required"`
	Items         []models.OrderItem `json:"items"`
}

// CreateOrder 创建订单
func (c *OrderController) CreateOrder() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.decodeBody(&req); err != nil {
		c.JSONAppError(err)
		return
	}

	order, err := c.Orders.CreateOrder(c.Ctx.Request.Context(), userID, models.PaymentMethod(req.PaymentMethod), req.Items)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(order)
}

// GetOrders 当前用户订单列表，按创建时间倒序
func (c *OrderController) GetOrders() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	limit, err := c.intQuery("limit", 0)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	offset, err := c.intQuery("offset", 0)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	orders, total, err := c.Orders.ListUserOrders(c.Ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"orders": orders,
		"total":  total,
	})
}

// GetOrder 订单详情
func (c *OrderController) GetOrder() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	order, err := c.Orders.GetOrder(c.Ctx.Request.Context(), c.Ctx.Input.Param(":id"))
	if err != nil {
		c.JSONAppError(err)
		return
	}
	if order.UserID != userID {
		c.JSONAppError(apperrors.NewAccessDeniedError())
		return
	}
	c.JSONSuccess(order)
}

// CancelOrder 用户取消待支付订单
func (c *OrderController) CancelOrder() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	order, err := c.Orders.CancelOrder(c.Ctx.Request.Context(), c.Ctx.Input.Param(":id"), userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(order)
}
