package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer  ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"

	// 订单与权益
	ErrCodeOrderNotFound        ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeInvalidItem          ErrorCode = "INVALID_ITEM"
	ErrCodeEmptyOrder           ErrorCode = "EMPTY_ORDER"
	ErrCodeIllegalTransition    ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeAmountMismatch       ErrorCode = "AMOUNT_MISMATCH"
	ErrCodeLatePayment          ErrorCode = "LATE_PAYMENT"
	ErrCodeDuplicateTransaction ErrorCode = "DUPLICATE_TRANSACTION"

	// 数据库错误
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// 外部服务错误
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// String 返回错误类型名称
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeExternal:
		return "external"
	default:
		return "system"
	}
}

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，订单不存在同时视为资源不存在
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == ErrCodeOrderNotFound && t.Code == ErrCodeResourceNotFound
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 哨兵错误，仅用于 errors.Is 比较
var (
	ErrNotFound             = &AppError{Code: ErrCodeResourceNotFound}
	ErrOrderNotFound        = &AppError{Code: ErrCodeOrderNotFound}
	ErrInvalidItem          = &AppError{Code: ErrCodeInvalidItem}
	ErrEmptyOrder           = &AppError{Code: ErrCodeEmptyOrder}
	ErrIllegalTransition    = &AppError{Code: ErrCodeIllegalTransition}
	ErrAmountMismatch       = &AppError{Code: ErrCodeAmountMismatch}
	ErrLatePayment          = &AppError{Code: ErrCodeLatePayment}
	ErrDuplicateTransaction = &AppError{Code: ErrCodeDuplicateTransaction}
	ErrValidation           = &AppError{Code: ErrCodeValidationFailed}
	ErrInvalidInput         = &AppError{Code: ErrCodeInvalidInput}
	ErrAccessDenied         = &AppError{Code: ErrCodeAccessDenied}
)

// 错误构造函数

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewDatabaseError 包装数据库错误
func NewDatabaseError(op string, cause error) *AppError {
	return NewSystemError(ErrCodeDatabaseError, op).WithCause(cause)
}

// NewBusinessError 创建业务错误
func NewBusinessError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewAccessDeniedError 创建访问拒绝错误
func NewAccessDeniedError() *AppError {
	return &AppError{
		Code:     ErrCodeAccessDenied,
		Message:  "Access denied",
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusForbidden,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewOrderNotFoundError 订单不存在
func NewOrderNotFoundError(orderID string) *AppError {
	return NewBusinessError(ErrCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID)).
		WithDetails(map[string]string{"order_id": orderID})
}

// NewEmptyOrderError 订单没有任何商品
func NewEmptyOrderError() *AppError {
	return NewBusinessError(ErrCodeEmptyOrder, "order must contain at least one item")
}

// NewInvalidItemError 商品无法在目录中解析或数量非法
func NewInvalidItemError(assetType, assetID, reason string) *AppError {
	return NewBusinessError(ErrCodeInvalidItem, fmt.Sprintf("invalid item %s/%s: %s", assetType, assetID, reason)).
		WithDetails(map[string]string{"asset_type": assetType, "asset_id": assetID})
}

// NewIllegalTransitionError 非法的订单状态迁移
func NewIllegalTransitionError(orderID, from, to string) *AppError {
	return NewBusinessError(ErrCodeIllegalTransition, fmt.Sprintf("order %s cannot move from %s to %s", orderID, from, to)).
		WithDetails(map[string]string{"order_id": orderID, "from": from, "to": to})
}

// NewAmountMismatchError 支付金额与订单金额不一致
func NewAmountMismatchError(orderID, expected, actual string) *AppError {
	return NewBusinessError(ErrCodeAmountMismatch, fmt.Sprintf("order %s amount mismatch: expected %s, got %s", orderID, expected, actual)).
		WithDetails(map[string]string{"order_id": orderID, "expected": expected, "actual": actual})
}

// NewLatePaymentError 已取消订单收到支付
func NewLatePaymentError(orderID, transactionID string) *AppError {
	return NewBusinessError(ErrCodeLatePayment, fmt.Sprintf("payment %s arrived for cancelled order %s", transactionID, orderID)).
		WithDetails(map[string]string{"order_id": orderID, "gateway_transaction_id": transactionID})
}

// NewDuplicateTransactionError 同一网关交易号被用于不同订单
func NewDuplicateTransactionError(transactionID, recordedOrder, orderID string) *AppError {
	return NewBusinessError(ErrCodeDuplicateTransaction,
		fmt.Sprintf("transaction %s already recorded for order %s, not %s", transactionID, recordedOrder, orderID)).
		WithDetails(map[string]string{"gateway_transaction_id": transactionID, "recorded_order_id": recordedOrder, "order_id": orderID})
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeResourceNotFound, ErrCodeOrderNotFound:
		return http.StatusNotFound
	case ErrCodeAccessDenied, ErrCodeUnauthorized, ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeIllegalTransition, ErrCodeLatePayment, ErrCodeDuplicateTransaction:
		return http.StatusConflict
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidItem, ErrCodeEmptyOrder:
		return http.StatusBadRequest
	case ErrCodeAmountMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// IsBusiness 判断是否为业务/校验类错误，这类错误重试不会成功
func IsBusiness(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == ErrorTypeBusiness || appErr.Type == ErrorTypeValidation
}
