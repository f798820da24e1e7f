package router

import (
	"github.com/aihub/commerce-go/app/controllers"
	"github.com/aihub/commerce-go/app/middleware"
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"
)

// Options 路由依赖
type Options struct {
	Container      *dig.Container
	Health         controllers.HealthReporter
	Gatherer       prometheus.Gatherer
	MetricsPath    string
	AllowedOrigins []string
}

// BuildRoutes 构建全部路由组
func BuildRoutes(opts Options) (*RouteGroup, error) {
	factory := controllers.NewControllerFactory(opts.Container)

	orderController, err := factory.CreateOrderController()
	if err != nil {
		return nil, err
	}
	paymentController, err := factory.CreatePaymentController()
	if err != nil {
		return nil, err
	}
	entitlementController, err := factory.CreateEntitlementController()
	if err != nil {
		return nil, err
	}

	root := NewRouteGroup("")
	root.GET("/health", &controllers.HealthController{Reporter: opts.Health}, "Health", "健康检查")
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		handler := promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
		root.GET(path, &controllers.MetricsController{Handler: handler}, "Metrics", "指标数据")
	}

	v1 := root.Group("/api/v1")

	orders := v1.Group("/orders")
	orders.GET("", orderController, "GetOrders", "订单列表")
	orders.POST("", orderController, "CreateOrder", "创建订单")
	orders.GET("/:id", orderController, "GetOrder", "订单详情")
	orders.POST("/:id/cancel", orderController, "CancelOrder", "取消订单")
	orders.GET("/:id/grant", entitlementController, "Grant", "订单授予明细")

	v1.POST("/payments/events", paymentController, "PaymentEvent", "支付回调事件")

	v1.GET("/entitlements/check", entitlementController, "Check", "权益校验")
	v1.GET("/entitlements/membership", entitlementController, "Membership", "会员状态")
	v1.GET("/assets", entitlementController, "Assets", "用户资产")

	return root, nil
}

// Register 注册全局过滤器和路由
func Register(handlers *web.ControllerRegister, opts Options) (*RouteGroup, error) {
	root, err := BuildRoutes(opts)
	if err != nil {
		return nil, err
	}

	if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.RequestStartFilter); err != nil {
		return nil, err
	}
	if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware(opts.AllowedOrigins...)); err != nil {
		return nil, err
	}
	if err := handlers.InsertFilter("/*", web.FinishRouter, middleware.AccessLogFilter, web.WithReturnOnOutput(false)); err != nil {
		return nil, err
	}

	root.Register(handlers)
	return root, nil
}

// Init registers all routes on the default Beego app. Must be called after bootstrap.
func Init(opts Options) error {
	_, err := Register(web.BeeApp.Handlers, opts)
	return err
}
