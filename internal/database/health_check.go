package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PingFunc 附加依赖的探活函数，例如 Redis
type PingFunc func(ctx context.Context) error

// HealthChecker 数据库及附加依赖的健康检查器
type HealthChecker struct {
	db            *sql.DB
	logger        *logrus.Logger
	components    map[string]PingFunc
	checkInterval time.Duration
	checkTimeout  time.Duration
	retryDelay    time.Duration
	maxRetries    int

	mu        sync.RWMutex
	isHealthy bool
	lastCheck time.Time
	lastError error
	status    map[string]string
	stopChan  chan struct{}
	running   bool
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy    bool              `json:"healthy"`
	LastCheck  time.Time         `json:"last_check"`
	LastError  string            `json:"last_error,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:            db,
		logger:        logger,
		components:    make(map[string]PingFunc),
		checkInterval: 30 * time.Second,
		checkTimeout:  5 * time.Second,
		retryDelay:    5 * time.Second,
		maxRetries:    3,
		status:        make(map[string]string),
		stopChan:      make(chan struct{}),
	}
}

// AddComponent 注册附加依赖，失败时整体不健康
func (hc *HealthChecker) AddComponent(name string, ping PingFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[name] = ping
}

// SetCheckInterval 设置检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// SetRetryConfig 设置重试配置
func (hc *HealthChecker) SetRetryConfig(delay time.Duration, maxRetries int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.retryDelay = delay
	hc.maxRetries = maxRetries
}

// Start 在后台周期检查，直到 ctx 结束或调用 Stop
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.checkInterval
	stop := hc.stopChan
	hc.mu.Unlock()

	hc.logger.Info("Starting health checker")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		hc.checkAndUpdate(ctx)
		for {
			select {
			case <-ctx.Done():
				hc.markStopped()
				return
			case <-stop:
				hc.markStopped()
				return
			case <-ticker.C:
				hc.checkAndUpdate(ctx)
			}
		}
	}()
}

func (hc *HealthChecker) markStopped() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Health checker stopped")
}

// Stop 停止健康检查
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
	hc.stopChan = make(chan struct{})
}

// Check 执行单次检查：数据库 ping 加全部附加依赖
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
	defer cancel()

	status := make(map[string]string)
	firstErr := hc.db.PingContext(ctx)
	status["database"] = statusOf(firstErr)

	hc.mu.RLock()
	components := make(map[string]PingFunc, len(hc.components))
	for name, ping := range hc.components {
		components[name] = ping
	}
	hc.mu.RUnlock()

	for name, ping := range components {
		err := ping(ctx)
		status[name] = statusOf(err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	responseTime := time.Since(start)

	hc.mu.Lock()
	wasHealthy := hc.isHealthy
	hc.lastCheck = time.Now()
	hc.status = status
	hc.lastError = firstErr
	hc.isHealthy = firstErr == nil
	hc.mu.Unlock()

	if firstErr != nil {
		hc.logger.WithFields(logrus.Fields{
			"error":         firstErr.Error(),
			"response_time": responseTime,
			"components":    status,
		}).Warn("Health check failed")
		return firstErr
	}

	if !wasHealthy {
		hc.logger.WithField("response_time", responseTime).Info("Dependencies healthy")
	}
	hc.logger.WithField("response_time", responseTime).Debug("Health check passed")
	return nil
}

func statusOf(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}

// checkAndUpdate 执行检查，失败时带退避重试
func (hc *HealthChecker) checkAndUpdate(ctx context.Context) {
	if err := hc.Check(ctx); err == nil {
		return
	}

	hc.mu.RLock()
	delay, maxRetries := hc.retryDelay, hc.maxRetries
	hc.mu.RUnlock()

	for i := 0; i < maxRetries; i++ {
		hc.logger.WithField("attempt", i+1).Info("Retrying health check")
		select {
		case <-time.After(delay * time.Duration(i+1)):
			if err := hc.Check(ctx); err == nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}

	hc.logger.Error("Health check failed after all retries")
}

// IsHealthy 获取当前健康状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// GetHealthResult 获取健康检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:    hc.isHealthy,
		LastCheck:  hc.lastCheck,
		Components: make(map[string]string, len(hc.status)),
	}
	for name, s := range hc.status {
		result.Components[name] = s
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}

// ComponentNames 已注册的附加依赖名称
func (hc *HealthChecker) ComponentNames() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.components))
	for name := range hc.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WaitForHealthy 等待依赖变为健康状态
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeoutCtx.Done():
			return timeoutCtx.Err()
		case <-ticker.C:
			if hc.IsHealthy() {
				return nil
			}
		}
	}
}
