package errors

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorMonitor 错误监控器
type ErrorMonitor struct {
	errorCounter *prometheus.CounterVec

	stats      map[string]*ErrorStats
	statsMutex sync.RWMutex
}

// ErrorStats 错误统计信息
type ErrorStats struct {
	Code      string
	Type      string
	Endpoint  string
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// NewErrorMonitor 创建错误监控器，reg 为 nil 时只做内存统计
func NewErrorMonitor(reg prometheus.Registerer) *ErrorMonitor {
	em := &ErrorMonitor{
		stats: make(map[string]*ErrorStats),
	}
	if reg != nil {
		em.errorCounter = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_http_errors_total",
				Help: "Total number of errors returned by code and type",
			},
			[]string{"code", "type", "endpoint"},
		)
	}
	return em
}

// RecordError 记录错误
func (em *ErrorMonitor) RecordError(appErr *AppError, endpoint string) {
	if appErr == nil {
		return
	}
	if em.errorCounter != nil {
		em.errorCounter.WithLabelValues(string(appErr.Code), appErr.Type.String(), endpoint).Inc()
	}

	em.statsMutex.Lock()
	defer em.statsMutex.Unlock()

	key := string(appErr.Code) + ":" + endpoint
	now := time.Now()
	stats, exists := em.stats[key]
	if !exists {
		stats = &ErrorStats{
			Code:      string(appErr.Code),
			Type:      appErr.Type.String(),
			Endpoint:  endpoint,
			FirstSeen: now,
		}
		em.stats[key] = stats
	}
	stats.Count++
	stats.LastSeen = now
}

// GetStats 获取统计快照
func (em *ErrorMonitor) GetStats() []ErrorStats {
	em.statsMutex.RLock()
	defer em.statsMutex.RUnlock()

	result := make([]ErrorStats, 0, len(em.stats))
	for _, s := range em.stats {
		result = append(result, *s)
	}
	return result
}
