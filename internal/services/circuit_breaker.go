package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aihub/commerce-go/internal/logger"
	"github.com/aihub/commerce-go/internal/models"
	"go.uber.org/zap"
)

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String 返回状态字符串
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断期间直接拒绝调用
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 熔断器
// 连续失败达到 failureThreshold 后打开，openTimeout 后进入半开，
// 半开状态连续成功 successThreshold 次后关闭，任意失败重新打开
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time

	mu           sync.Mutex
	state        CircuitBreakerState
	failureCount int
	successCount int
	openedAt     time.Time
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// Call 执行函数调用（带熔断保护）
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
	}
	return true
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				cb.state = StateClosed
				logger.Info("熔断器恢复", zap.String("name", cb.name))
			}
		}
		return
	}

	cb.failureCount++
	if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != StateOpen {
			logger.Warn("熔断器打开", zap.String("name", cb.name), zap.Int("failures", cb.failureCount))
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.successCount = 0
	}
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats 获取统计信息
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.state.String(),
		"failure_count":     cb.failureCount,
		"success_count":     cb.successCount,
		"failure_threshold": cb.failureThreshold,
		"success_threshold": cb.successThreshold,
		"open_timeout":      cb.openTimeout.String(),
	}
}

// BreakingPublisher 带熔断保护的订单事件发布器，消息队列不可用时快速失败
type BreakingPublisher struct {
	inner   OrderEventPublisher
	breaker *CircuitBreaker
}

// NewBreakingPublisher 包装发布器
func NewBreakingPublisher(inner OrderEventPublisher, breaker *CircuitBreaker) *BreakingPublisher {
	return &BreakingPublisher{inner: inner, breaker: breaker}
}

// PublishOrderEvent 发布订单事件
func (p *BreakingPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return p.breaker.Call(func() error {
		return p.inner.PublishOrderEvent(ctx, event)
	})
}
