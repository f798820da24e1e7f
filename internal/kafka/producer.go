package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"go.uber.org/zap"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig 生产者配置：同步发送，等待全部副本确认
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// NewProducer 创建订单事件生产者
func NewProducer(brokers []string, topic string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewProducerWithClient(producer, topic), nil
}

// NewProducerWithClient 使用已有的 sarama producer 创建生产者
func NewProducerWithClient(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// GetProducerInstance 获取底层sarama producer实例
func (p *Producer) GetProducerInstance() sarama.SyncProducer {
	return p.producer
}

// PublishOrderEvent 发布订单状态变更事件，以订单号为分区键保证同一订单的事件有序
func (p *Producer) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化订单事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("user_id"),
				Value: []byte(fmt.Sprintf("%d", event.UserID)),
			},
			{
				Key:   []byte("status"),
				Value: []byte(event.To),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送订单事件失败: %w", err)
	}

	logger.Debug("订单事件发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("order_id", event.OrderID),
		zap.String("status", string(event.To)))
	return nil
}

// RetryMessage 重试消息
type RetryMessage struct {
	OriginalTopic string          `json:"original_topic"`
	OriginalKey   string          `json:"original_key"`
	Data          json.RawMessage `json:"data"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
}

// SendRetryMessage 将处理失败的消息转发到 <topic>.retry
func (p *Producer) SendRetryMessage(topic string, key string, data []byte, retryCount int, lastError string) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}

	if !json.Valid(data) {
		data, _ = json.Marshal(string(data))
	}
	retryData, err := json.Marshal(RetryMessage{
		OriginalTopic: topic,
		OriginalKey:   key,
		Data:          data,
		RetryCount:    retryCount,
		LastError:     lastError,
	})
	if err != nil {
		return fmt.Errorf("序列化重试消息失败: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: RetryTopic(topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(retryData),
	})
	return err
}

// RetryTopic 重试队列名称
func RetryTopic(topic string) string {
	return topic + ".retry"
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
