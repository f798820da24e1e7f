package services

import (
	"context"
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentReconciler 将已验签的网关事件应用到订单，按网关交易号幂等
type PaymentReconciler struct {
	store    repository.Store
	orders   *OrderService
	metrics  *CommerceMetrics
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewPaymentReconciler 创建对账服务
func NewPaymentReconciler(store repository.Store, orders *OrderService, metrics *CommerceMetrics) *PaymentReconciler {
	return &PaymentReconciler{
		store:    store,
		orders:   orders,
		metrics:  metrics,
		validate: validator.New(),
		log:      logger.Payment(),
		now:      time.Now,
	}
}

// SetClock 替换时间源
func (r *PaymentReconciler) SetClock(now func() time.Time) {
	r.now = now
}

// HandlePaymentEvent 处理一次网关回调
// 重复的交易号返回首次处理结果且 Duplicate 为 true，不产生任何副作用
func (r *PaymentReconciler) HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) (*models.ReconcileResult, error) {
	if event == nil {
		return nil, r.reject(nil, apperrors.NewValidationError("payment event is required"))
	}
	if err := r.validate.Struct(event); err != nil {
		return nil, r.reject(event, apperrors.NewValidationError(err.Error()))
	}
	paid, err := decimal.NewFromString(event.PaidAmount)
	if err != nil {
		return nil, r.reject(event, apperrors.NewInvalidInputError("paid_amount", err.Error()))
	}

	now := r.now()
	occurredAt := now
	if event.OccurredAt != nil && !event.OccurredAt.IsZero() {
		occurredAt = *event.OccurredAt
	}

	var (
		result *models.ReconcileResult
		change *transitionChange
	)
	err = r.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetForUpdate(ctx, event.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperrors.NewOrderNotFoundError(event.OrderID)
		}

		record, err := tx.PaymentEvents().Get(ctx, event.GatewayTransactionID)
		if err != nil {
			return err
		}
		if record != nil {
			if record.OrderID != order.ID {
				return apperrors.NewDuplicateTransactionError(event.GatewayTransactionID, record.OrderID, order.ID)
			}
			result = record.ToResult()
			result.Duplicate = true
			return nil
		}

		if !paid.Equal(order.Amount) {
			return apperrors.NewAmountMismatchError(order.ID, order.Amount.StringFixed(2), paid.StringFixed(2))
		}

		outcome, c, err := r.apply(ctx, tx, order, event, occurredAt)
		if err != nil {
			return err
		}
		change = c

		record = &models.PaymentEventRecord{
			GatewayTransactionID: event.GatewayTransactionID,
			OrderID:              order.ID,
			EventType:            event.EventType,
			PaymentMethod:        event.PaymentMethod,
			PaidAmount:           paid,
			Outcome:              outcome,
			ResultStatus:         order.Status,
			ProcessedAt:          now,
		}
		if err := tx.PaymentEvents().Create(ctx, record); err != nil {
			return err
		}
		result = record.ToResult()
		return nil
	})
	if err != nil {
		return nil, r.reject(event, err)
	}

	r.orders.afterTransition(ctx, change)
	r.metrics.PaymentEvent(result)
	r.log.Info("网关事件处理完成",
		zap.String("order_id", result.OrderID),
		zap.String("gateway_transaction_id", result.GatewayTransactionID),
		zap.String("event_type", string(result.EventType)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("status", string(result.Status)),
		zap.Bool("duplicate", result.Duplicate))
	return result, nil
}

// apply 按事件类型和订单当前状态决定结果
func (r *PaymentReconciler) apply(ctx context.Context, tx repository.Store, order *models.Order, event *models.PaymentEvent, occurredAt time.Time) (models.ReconcileOutcome, *transitionChange, error) {
	switch event.EventType {
	case models.PaymentEventPayment:
		switch order.Status {
		case models.OrderStatusPending:
			if event.PaymentMethod != "" && event.PaymentMethod != order.PaymentMethod {
				r.log.Warn("网关支付方式与订单不一致，按订单记录处理",
					zap.String("order_id", order.ID),
					zap.String("order_method", string(order.PaymentMethod)),
					zap.String("event_method", string(event.PaymentMethod)))
			}
			change, err := r.orders.applyTransition(ctx, tx, order, models.OrderStatusPaid, occurredAt, event.GatewayTransactionID)
			if err != nil {
				return "", nil, err
			}
			return models.OutcomeApplied, change, nil
		case models.OrderStatusPaid:
			r.metrics.DoubleCharge()
			r.log.Warn("订单已由其他交易支付，疑似重复扣款",
				zap.String("order_id", order.ID),
				zap.String("gateway_transaction_id", event.GatewayTransactionID),
				zap.String("paid_by", order.GatewayTradeNo))
			return models.OutcomeAlreadyApplied, nil, nil
		case models.OrderStatusCancelled:
			return "", nil, apperrors.NewLatePaymentError(order.ID, event.GatewayTransactionID)
		}
	case models.PaymentEventRefund:
		switch order.Status {
		case models.OrderStatusPaid:
			change, err := r.orders.applyTransition(ctx, tx, order, models.OrderStatusRefunded, occurredAt, event.GatewayTransactionID)
			if err != nil {
				return "", nil, err
			}
			return models.OutcomeApplied, change, nil
		case models.OrderStatusRefunded:
			return models.OutcomeAlreadyApplied, nil, nil
		}
	}

	target := models.OrderStatusPaid
	if event.EventType == models.PaymentEventRefund {
		target = models.OrderStatusRefunded
	}
	return "", nil, apperrors.NewIllegalTransitionError(order.ID, string(order.Status), string(target))
}

// reject 记录被拒绝的事件并原样返回错误
func (r *PaymentReconciler) reject(event *models.PaymentEvent, err error) error {
	appErr := apperrors.GetAppError(err)
	r.metrics.ReconcileError(string(appErr.Code))

	fields := []zap.Field{zap.String("code", string(appErr.Code)), zap.Error(err)}
	if event != nil {
		fields = append(fields,
			zap.String("order_id", event.OrderID),
			zap.String("gateway_transaction_id", event.GatewayTransactionID),
			zap.String("event_type", string(event.EventType)))
	}

	disposition := ClassifyReconcileError(err)
	switch {
	case disposition.Alert:
		r.log.Error("网关事件对账异常，需人工处理", fields...)
	case disposition.Acknowledge:
		r.log.Warn("网关事件被拒绝", fields...)
	default:
		r.log.Error("网关事件处理失败，等待重试", fields...)
	}
	return err
}

// ReconcileDisposition 回调适配层对错误的处理方式
// Acknowledge 表示向网关确认收到不再重投，Alert 表示需要人工介入
type ReconcileDisposition struct {
	Acknowledge bool `json:"acknowledge"`
	Alert       bool `json:"alert"`
}

// ClassifyReconcileError 业务错误重试也不会成功，确认并告警；系统错误不确认，由网关重投
func ClassifyReconcileError(err error) ReconcileDisposition {
	if err == nil {
		return ReconcileDisposition{Acknowledge: true}
	}
	appErr := apperrors.GetAppError(err)
	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		return ReconcileDisposition{Acknowledge: true}
	case apperrors.ErrorTypeBusiness:
		return ReconcileDisposition{Acknowledge: true, Alert: true}
	default:
		return ReconcileDisposition{}
	}
}
