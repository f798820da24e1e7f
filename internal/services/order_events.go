package services

import (
	"context"

	"github.com/aihub/commerce-go/internal/models"
)

// OrderEventPublisher 订单状态变更事件发布器，由 Kafka 生产者实现
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// NoopEventPublisher 未配置消息队列时使用
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishOrderEvent(context.Context, *models.OrderEvent) error {
	return nil
}
