package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aihub/commerce-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("order-events", 2, 1, time.Minute)
	cb.now = clock.Now

	boom := errors.New("broker down")
	calls := 0
	failing := func() error {
		calls++
		return boom
	}

	assert.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	// 打开期间不调用
	assert.ErrorIs(t, cb.Call(failing), ErrCircuitOpen)
	assert.Equal(t, 2, calls)

	// 半开失败重新打开
	clock.Advance(time.Minute)
	assert.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	clock.Advance(time.Minute)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "closed", cb.GetStats()["state"])
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("order-events", 2, 1, time.Minute)
	boom := errors.New("timeout")

	_ = cb.Call(func() error { return boom })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return boom })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakingPublisher(t *testing.T) {
	inner := new(MockEventPublisher)
	inner.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	publisher := NewBreakingPublisher(inner, NewCircuitBreaker("order-events", 1, 1, time.Hour))
	event := &models.OrderEvent{OrderID: "o1"}

	assert.Error(t, publisher.PublishOrderEvent(context.Background(), event))
	assert.ErrorIs(t, publisher.PublishOrderEvent(context.Background(), event), ErrCircuitOpen)
	inner.AssertNumberOfCalls(t, "PublishOrderEvent", 1)
}
