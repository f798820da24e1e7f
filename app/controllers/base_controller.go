package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
	Errors *apperrors.ErrorHandler
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误类型映射HTTP状态码并输出错误体
func (c *BaseController) JSONAppError(err error) {
	c.jsonAppError(err, nil)
}

// jsonAppError extra 中的字段追加到错误信封顶层
func (c *BaseController) jsonAppError(err error, extra map[string]interface{}) {
	endpoint := c.Ctx.Input.Method() + " " + c.Ctx.Input.URL()
	handler := c.Errors
	if handler == nil {
		handler = apperrors.NewErrorHandler(nil, nil)
	}
	status, resp := handler.Handle(endpoint, err)
	payload := map[string]interface{}{
		"success": false,
		"error":   resp,
	}
	for k, v := range extra {
		payload[k] = v
	}
	c.JSON(status, payload)
}

// decodeBody 解析JSON请求体并校验
func (c *BaseController) decodeBody(v interface{}) error {
	if err := json.NewDecoder(c.Ctx.Request.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("invalid request body").WithCause(err)
	}
	if err := validate.Struct(v); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// getAuthenticatedUserID 获取认证用户ID
// 网关完成认证后通过 X-User-Id 透传用户ID，兼容 "Bearer {user_id}"
func (c *BaseController) getAuthenticatedUserID() (uint, bool) {
	if userIDHeader := c.Ctx.Input.Header("X-User-Id"); userIDHeader != "" {
		if userID, err := strconv.ParseUint(userIDHeader, 10, 32); err == nil && userID > 0 {
			return uint(userID), true
		}
		return 0, false
	}

	authHeader := c.Ctx.Input.Header("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		if userID, err := strconv.ParseUint(parts[1], 10, 32); err == nil && userID > 0 {
			return uint(userID), true
		}
	}
	return 0, false
}

// requireUser 未认证时直接输出401
func (c *BaseController) requireUser() (uint, bool) {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return userID, true
}

// intQuery 读取整数查询参数
func (c *BaseController) intQuery(key string, def int) (int, error) {
	raw := c.GetString(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidInputError(key, "must be an integer")
	}
	return v, nil
}
