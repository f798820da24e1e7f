package middleware

import (
	"time"

	"github.com/aihub/commerce-go/internal/logger"
	"github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const requestStartKey = "requestStart"

// RequestStartFilter 记录请求开始时间，配合 AccessLogFilter 使用
func RequestStartFilter(ctx *context.Context) {
	ctx.Input.SetData(requestStartKey, time.Now())
}

// AccessLogFilter 请求完成后记录访问日志
func AccessLogFilter(ctx *context.Context) {
	fields := []zap.Field{
		zap.String("method", ctx.Input.Method()),
		zap.String("path", ctx.Input.URL()),
		zap.Int("status", ctx.ResponseWriter.Status),
		zap.String("ip", clientIP(ctx)),
	}
	if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
		fields = append(fields, zap.Duration("duration", time.Since(start)))
	}
	if userID := ctx.Input.Header("X-User-Id"); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}

	log := logger.Named("http")
	if ctx.ResponseWriter.Status >= 500 {
		log.Warn("请求处理失败", fields...)
		return
	}
	log.Info("请求完成", fields...)
}

// clientIP 获取客户端真实IP地址
func clientIP(ctx *context.Context) string {
	if forwarded := ctx.Input.Header("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := ctx.Input.Header("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ctx.Input.IP()
}
