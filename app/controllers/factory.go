package controllers

import (
	"go.uber.org/dig"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/services"
)

// ControllerFactory 控制器工厂
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// base 公共错误处理器
func (f *ControllerFactory) base() (BaseController, error) {
	var base BaseController
	err := f.container.Invoke(func(h *apperrors.ErrorHandler) {
		base.Errors = h
	})
	return base, err
}

// CreateOrderController 创建订单控制器
func (f *ControllerFactory) CreateOrderController() (*OrderController, error) {
	base, err := f.base()
	if err != nil {
		return nil, err
	}

	var orderService *services.OrderService
	err = f.container.Invoke(func(os *services.OrderService) {
		orderService = os
	})
	if err != nil {
		return nil, err
	}

	return &OrderController{BaseController: base, Orders: orderService}, nil
}

// CreatePaymentController 创建支付回调控制器
func (f *ControllerFactory) CreatePaymentController() (*PaymentController, error) {
	base, err := f.base()
	if err != nil {
		return nil, err
	}

	var reconciler *services.PaymentReconciler
	err = f.container.Invoke(func(r *services.PaymentReconciler) {
		reconciler = r
	})
	if err != nil {
		return nil, err
	}

	return &PaymentController{BaseController: base, Reconciler: reconciler}, nil
}

// CreateEntitlementController 创建权益控制器
func (f *ControllerFactory) CreateEntitlementController() (*EntitlementController, error) {
	base, err := f.base()
	if err != nil {
		return nil, err
	}

	var entitlementService *services.EntitlementService
	err = f.container.Invoke(func(es *services.EntitlementService) {
		entitlementService = es
	})
	if err != nil {
		return nil, err
	}

	return &EntitlementController{BaseController: base, Entitlements: entitlementService}, nil
}
