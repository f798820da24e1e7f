package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/services"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数，返回错误表示可以重试
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// RetryPublisher 重试次数用尽的消息转发目标
type RetryPublisher interface {
	SendRetryMessage(topic string, key string, data []byte, retryCount int, lastError string) error
}

// Consumer Kafka消费者
type Consumer struct {
	consumer   sarama.ConsumerGroup
	groupID    string
	topics     []string
	dispatcher *dispatcher
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewConsumerConfig 消费者组配置
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V2_6_0_0
	return config
}

// NewConsumer 创建消费者组，retry 为 nil 时重试用尽的消息只记录日志
func NewConsumer(brokers []string, groupID string, topics []string, retry RetryPublisher) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka消费者组失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger.Info("Kafka消费者初始化成功",
		zap.Strings("brokers", brokers),
		zap.String("group_id", groupID),
		zap.Strings("topics", topics))

	return &Consumer{
		consumer:   consumerGroup,
		groupID:    groupID,
		topics:     topics,
		dispatcher: newDispatcher(retry),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// RegisterHandler 注册消息处理器，须在 Start 之前调用
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	if c == nil {
		return
	}
	c.dispatcher.handlers[topic] = handler
	logger.Info("注册Kafka消息处理器", zap.String("topic", topic))
}

// Start 启动消费循环
func (c *Consumer) Start() {
	if c == nil || c.consumer == nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{dispatcher: c.dispatcher}
		for {
			select {
			case <-c.ctx.Done():
				logger.Info("Kafka消费者停止")
				return
			default:
				if err := c.consumer.Consume(c.ctx, c.topics, handler); err != nil {
					logger.Error("消费消息失败", zap.Error(err))
					select {
					case <-c.ctx.Done():
					case <-time.After(5 * time.Second):
					}
				}
			}
		}
	}()

	// 处理错误
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			logger.Error("Kafka消费者错误", zap.Error(err))
		}
	}()
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	c.cancel()
	var err error
	if c.consumer != nil {
		err = c.consumer.Close()
	}
	c.wg.Wait()
	return err
}

// dispatcher 按 topic 分发消息，可重试错误在本地退避重试
type dispatcher struct {
	handlers    map[string]MessageHandler
	retry       RetryPublisher
	maxAttempts int
	backoff     time.Duration
}

func newDispatcher(retry RetryPublisher) *dispatcher {
	return &dispatcher{
		handlers:    make(map[string]MessageHandler),
		retry:       retry,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
}

// dispatch 处理单条消息，返回后消息总是可以提交
func (d *dispatcher) dispatch(ctx context.Context, message *sarama.ConsumerMessage) {
	handler, ok := d.handlers[message.Topic]
	if !ok {
		logger.Warn("未找到消息处理器", zap.String("topic", message.Topic))
		return
	}

	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = handler(ctx, message); err == nil {
			logger.Debug("消息处理成功",
				zap.String("topic", message.Topic),
				zap.Int("partition", int(message.Partition)),
				zap.Int64("offset", message.Offset))
			return
		}
		logger.Warn("处理消息失败",
			zap.String("topic", message.Topic),
			zap.Int("partition", int(message.Partition)),
			zap.Int64("offset", message.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < d.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.backoff * time.Duration(attempt)):
			}
		}
	}

	if d.retry == nil {
		logger.Error("消息重试次数用尽，已丢弃", zap.String("topic", message.Topic), zap.Int64("offset", message.Offset), zap.Error(err))
		return
	}
	if sendErr := d.retry.SendRetryMessage(message.Topic, string(message.Key), message.Value, d.maxAttempts, err.Error()); sendErr != nil {
		logger.Error("转发重试消息失败", zap.String("topic", message.Topic), zap.Int64("offset", message.Offset), zap.Error(sendErr))
	}
}

// consumerGroupHandler 消费者组处理器
type consumerGroupHandler struct {
	dispatcher *dispatcher
}

// Setup 会话开始
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup 会话结束
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			h.dispatcher.dispatch(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// PaymentEventReconciler 支付事件对账接口
type PaymentEventReconciler interface {
	HandlePaymentEvent(ctx context.Context, event *models.PaymentEvent) (*models.ReconcileResult, error)
}

// NewPaymentEventHandler 支付事件处理器
// 无法解析的消息和业务异常直接确认（对账服务已记录告警），只有系统错误返回以便重试
func NewPaymentEventHandler(reconciler PaymentEventReconciler) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		var event models.PaymentEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Payment().Warn("丢弃无法解析的支付事件",
				zap.Int64("offset", message.Offset),
				zap.ByteString("key", message.Key),
				zap.Error(err))
			return nil
		}

		result, err := reconciler.HandlePaymentEvent(ctx, &event)
		if err != nil {
			if services.ClassifyReconcileError(err).Acknowledge {
				return nil
			}
			return err
		}

		logger.Payment().Debug("支付事件已消费",
			zap.String("order_id", result.OrderID),
			zap.String("gateway_transaction_id", result.GatewayTransactionID),
			zap.Bool("duplicate", result.Duplicate))
		return nil
	}
}
