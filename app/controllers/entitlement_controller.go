package controllers

import (
	"time"

	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/services"
)

// EntitlementController 权益查询控制器
type EntitlementController struct {
	BaseController
	Entitlements *services.EntitlementService
}

// Check 查询当前用户是否拥有某资产
func (c *EntitlementController) Check() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	assetType, err := models.ParseAssetType(c.GetString("asset_type"))
	if err != nil {
		c.JSONAppError(err)
		return
	}
	assetID := c.GetString("asset_id")
	if assetID == "" {
		c.JSONAppError(apperrors.NewInvalidInputError("asset_id", "required"))
		return
	}

	entitled, err := c.Entitlements.IsEntitled(c.Ctx.Request.Context(), userID, assetType, assetID, time.Now())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"asset_type": assetType,
		"asset_id":   assetID,
		"entitled":   entitled,
	})
}

// Membership 查询会员状态
func (c *EntitlementController) Membership() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	member, err := c.Entitlements.IsMember(c.Ctx.Request.Context(), userID, time.Now())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"member": member})
}

// Assets 当前用户资产列表
func (c *EntitlementController) Assets() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	assets, err := c.Entitlements.ListUserAssets(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(assets)
}

// Grant 订单授予明细
func (c *EntitlementController) Grant() {
	userID, ok := c.requireUser()
	if !ok {
		return
	}

	grant, err := c.Entitlements.GetGrant(c.Ctx.Request.Context(), c.Ctx.Input.Param(":id"))
	if err != nil {
		c.JSONAppError(err)
		return
	}
	if grant == nil {
		c.JSONAppError(apperrors.NewNotFoundError("entitlement grant"))
		return
	}
	if grant.UserID != userID {
		c.JSONAppError(apperrors.NewAccessDeniedError())
		return
	}
	c.JSONSuccess(grant)
}
