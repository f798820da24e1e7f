package services

import (
	"context"
	"strconv"
	"time"

	"github.com/aihub/commerce-go/internal/config"
	apperrors "github.com/aihub/commerce-go/internal/errors"
	"github.com/aihub/commerce-go/internal/models"
	"github.com/aihub/commerce-go/internal/repository"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// ResolvedItem 目录解析后的订单项
type ResolvedItem struct {
	Item    models.OrderItem
	Name    string
	AppMode *models.DifyAppMode
	// Validity 本订单项带来的有效期，0 表示永久
	Validity time.Duration
}

// CatalogService 将订单项解析为目录中的商品，价格和有效期都以目录为准
type CatalogService struct {
	appMonthlyDays int
	appYearlyDays  int
}

// NewCatalogService 创建目录服务
func NewCatalogService(cfg config.EntitlementConfig) *CatalogService {
	return &CatalogService{
		appMonthlyDays: cfg.AppMonthlyDays,
		appYearlyDays:  cfg.AppYearlyDays,
	}
}

// Resolve 解析单个订单项，客户端提交的单价被忽略
func (s *CatalogService) Resolve(ctx context.Context, catalog repository.CatalogRepository, item models.OrderItem) (*ResolvedItem, error) {
	if item.Quantity <= 0 {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "quantity must be positive")
	}

	assetType, err := models.ParseAssetType(string(item.AssetType))
	if err != nil {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "unknown asset type")
	}

	switch assetType {
	case models.AssetTypeApp:
		return s.resolveApp(ctx, catalog, item)
	default:
		return s.resolveCourse(ctx, catalog, item)
	}
}

func (s *CatalogService) resolveApp(ctx context.Context, catalog repository.CatalogRepository, item models.OrderItem) (*ResolvedItem, error) {
	cycle, err := models.ParseBillingCycle(string(item.BillingCycle))
	if err != nil {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "unknown billing cycle")
	}

	app, err := catalog.GetApp(ctx, item.AssetID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "not found in catalog")
	}

	days := s.appMonthlyDays
	if cycle == models.BillingCycleYearly {
		days = s.appYearlyDays
	}
	mode := app.Mode

	item.BillingCycle = cycle
	item.UnitPrice = app.PriceFor(cycle).StringFixed(2)
	return &ResolvedItem{
		Item:     item,
		Name:     app.Name,
		AppMode:  &mode,
		Validity: time.Duration(days*item.Quantity) * day,
	}, nil
}

func (s *CatalogService) resolveCourse(ctx context.Context, catalog repository.CatalogRepository, item models.OrderItem) (*ResolvedItem, error) {
	if item.BillingCycle != "" {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "courses have no billing cycle")
	}

	id, err := strconv.ParseUint(item.AssetID, 10, 64)
	if err != nil || id == 0 {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "malformed course id")
	}

	course, err := catalog.GetCourse(ctx, uint(id))
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apperrors.NewInvalidItemError(string(item.AssetType), item.AssetID, "not found in catalog")
	}

	item.UnitPrice = course.Price.StringFixed(2)
	return &ResolvedItem{
		Item:     item,
		Name:     course.Title,
		Validity: time.Duration(course.ValidityDays*item.Quantity) * day,
	}, nil
}

// Price 计算解析后订单项的总金额
func (s *CatalogService) Price(items []*ResolvedItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, resolved := range items {
		subtotal, err := resolved.Item.Subtotal()
		if err != nil {
			return decimal.Zero, apperrors.NewInvalidItemError(string(resolved.Item.AssetType), resolved.Item.AssetID, "malformed unit price")
		}
		total = total.Add(subtotal)
	}
	return total, nil
}
