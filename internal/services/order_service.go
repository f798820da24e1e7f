package services

import (
	"context"
	"strings"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService 订单服务
type OrderService struct {
	store        repository.Store
	catalog      *CatalogService
	entitlements *EntitlementService
	stateMachine *OrderStateMachine
	publisher    OrderEventPublisher
	metrics      *CommerceMetrics
	payment      config.PaymentConfig
	orderCfg     config.OrderConfig
	now          func() time.Time
}

// NewOrderService 创建订单服务实例，publisher 为 nil 时不发布事件
func NewOrderService(
	store repository.Store,
	catalog *CatalogService,
	entitlements *EntitlementService,
	publisher OrderEventPublisher,
	metrics *CommerceMetrics,
	cfg *config.Config,
) *OrderService {
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &OrderService{
		store:        store,
		catalog:      catalog,
		entitlements: entitlements,
		stateMachine: NewOrderStateMachine(),
		publisher:    publisher,
		metrics:      metrics,
		payment:      cfg.Payment,
		orderCfg:     cfg.Order,
		now:          time.Now,
	}
}

// SetClock 替换时间源
func (s *OrderService) SetClock(now func() time.Time) {
	s.now = now
}

// GenerateOrderID 生成订单号：时间戳 + UUID 前 8 位
func GenerateOrderID(at time.Time) string {
	return at.Format("20060102150405") + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// CreateOrder 创建订单，单价取自目录，金额在服务端一次算定
func (s *OrderService) CreateOrder(ctx context.Context, userID uint, method models.PaymentMethod, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, apperrors.NewEmptyOrderError()
	}

	method, err := models.ParsePaymentMethod(string(method))
	if err != nil {
		return nil, err
	}
	if !s.payment.MethodEnabled(string(method)) {
		return nil, apperrors.NewInvalidInputError("payment_method", "payment method "+string(method)+" is disabled")
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user")
	}

	resolved := make([]*ResolvedItem, 0, len(items))
	for _, item := range items {
		r, err := s.catalog.Resolve(ctx, s.store.Catalog(), item)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}

	amount, err := s.catalog.Price(resolved)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:            GenerateOrderID(now),
		UserID:        userID,
		Amount:        amount,
		Status:        models.OrderStatusPending,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, r := range resolved {
		order.Items = append(order.Items, r.Item)
	}

	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(method)
	logger.Info("订单创建成功",
		zap.String("order_id", order.ID),
		zap.Uint("user_id", userID),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.Int("items", len(order.Items)))
	return order, nil
}

// GetOrder 获取订单
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NewOrderNotFoundError(orderID)
	}
	return order, nil
}

// ListUserOrders 分页获取用户订单
func (s *OrderService) ListUserOrders(ctx context.Context, userID uint, limit, offset int) ([]*models.Order, int64, error) {
	if limit <= 0 {
		limit = s.orderCfg.ListLimit
	}
	if s.orderCfg.MaxListLimit > 0 && limit > s.orderCfg.MaxListLimit {
		limit = s.orderCfg.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Orders().ListByUser(ctx, userID, limit, offset)
}

// Transition 在单个事务内锁定订单并执行状态转换
// 目标状态等于当前状态时视为成功且不产生副作用
func (s *OrderService) Transition(ctx context.Context, orderID string, target models.OrderStatus, occurredAt time.Time) (*models.Order, error) {
	var change *transitionChange
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperrors.NewOrderNotFoundError(orderID)
		}
		change, err = s.applyTransition(ctx, tx, order, target, occurredAt, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, change)
	return change.order, nil
}

// CancelOrder 用户取消自己的待支付订单
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, userID uint) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.NewAccessDeniedError()
	}
	return s.Transition(ctx, orderID, models.OrderStatusCancelled, s.now())
}

// transitionChange 已在事务内完成、等待提交后处理的状态变更
type transitionChange struct {
	order                *models.Order
	from                 models.OrderStatus
	to                   models.OrderStatus
	changed              bool
	gatewayTransactionID string
}

// applyTransition 校验并执行状态转换及其副作用，调用方必须已锁定订单行
func (s *OrderService) applyTransition(ctx context.Context, tx repository.Store, order *models.Order, target models.OrderStatus, occurredAt time.Time, gatewayTxID string) (*transitionChange, error) {
	from := order.Status
	change := &transitionChange{order: order, from: from, to: target, gatewayTransactionID: gatewayTxID}
	if from == target {
		return change, nil
	}
	if !s.stateMachine.CanTransition(from, target) {
		return nil, apperrors.NewIllegalTransitionError(order.ID, string(from), string(target))
	}

	switch target {
	case models.OrderStatusPaid:
		payTime := occurredAt
		order.PayTime = &payTime
		if gatewayTxID != "" {
			order.GatewayTradeNo = gatewayTxID
		}
		if _, err := s.entitlements.Grant(ctx, tx, order, occurredAt); err != nil {
			return nil, err
		}
	case models.OrderStatusRefunded:
		if _, err := s.entitlements.Revoke(ctx, tx, order, occurredAt); err != nil {
			return nil, err
		}
	}

	order.Status = target
	order.UpdatedAt = s.now()
	if err := tx.Orders().UpdateStatus(ctx, order); err != nil {
		return nil, err
	}
	change.changed = true
	return change, nil
}

// afterTransition 提交后发布事件、清理缓存，不持有任何锁
func (s *OrderService) afterTransition(ctx context.Context, change *transitionChange) {
	if change == nil || !change.changed {
		return
	}
	order := change.order

	s.metrics.Transition(change.from, change.to)
	s.entitlements.afterCommit(ctx, order, change.to)

	event := &models.OrderEvent{
		OrderID:              order.ID,
		UserID:               order.UserID,
		From:                 change.from,
		To:                   change.to,
		Amount:               order.Amount.StringFixed(2),
		GatewayTransactionID: change.gatewayTransactionID,
		OccurredAt:           order.UpdatedAt,
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.metrics.PublishFailed()
		logger.Error("发布订单事件失败",
			zap.String("order_id", order.ID),
			zap.String("to", string(change.to)),
			zap.Error(err))
	}

	logger.Info("订单状态已变更",
		zap.String("order_id", order.ID),
		zap.String("from", string(change.from)),
		zap.String("to", string(change.to)))
}
