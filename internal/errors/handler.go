package errors

import (
	"go.uber.org/zap"
)

// ErrorHandler 错误处理器，把错误转换为HTTP响应体并记录
type ErrorHandler struct {
	logger  *zap.Logger
	monitor *ErrorMonitor
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *zap.Logger, monitor *ErrorMonitor) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger:  logger,
		monitor: monitor,
	}
}

// Response 错误响应
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Details interface{} `json:"details,omitempty"`
}

// Handle 处理错误，返回HTTP状态码和响应体
func (h *ErrorHandler) Handle(endpoint string, err error) (int, Response) {
	appErr := GetAppError(err)

	if h.monitor != nil {
		h.monitor.RecordError(appErr, endpoint)
	}
	h.logError(appErr, endpoint)

	resp := Response{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Type:    appErr.Type.String(),
	}
	if appErr.Details != nil && shouldIncludeDetails(appErr) {
		resp.Details = appErr.Details
	}
	return appErr.HTTPCode, resp
}

// logError 记录错误日志
func (h *ErrorHandler) logError(appErr *AppError, endpoint string) {
	fields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_type", appErr.Type.String()),
		zap.Int("http_code", appErr.HTTPCode),
		zap.String("endpoint", endpoint),
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}

	// 根据错误类型选择日志级别
	switch appErr.Type {
	case ErrorTypeSystem:
		h.logger.Error("System error occurred", fields...)
	case ErrorTypeBusiness, ErrorTypeExternal:
		h.logger.Warn("Business error occurred", fields...)
	default:
		h.logger.Info("Validation error occurred", fields...)
	}
}

// shouldIncludeDetails 系统错误和外部错误不暴露详情
func shouldIncludeDetails(appErr *AppError) bool {
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeBusiness:
		return true
	default:
		return false
	}
}
