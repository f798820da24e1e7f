package controllers

import (
	"net/http"

	"github.com/aihub/commerce-go/internal/database"
	"github.com/beego/beego/v2/server/web"
)

// HealthReporter 健康状态来源
type HealthReporter interface {
	GetHealthStatus() database.HealthCheckResult
}

// HealthController 健康检查
type HealthController struct {
	BaseController
	Reporter HealthReporter
}

// Health 依赖不健康时返回503
func (c *HealthController) Health() {
	if c.Reporter == nil {
		c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
		return
	}

	result := c.Reporter.GetHealthStatus()
	status := http.StatusOK
	label := "ok"
	if !result.Healthy {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}
	c.JSON(status, map[string]interface{}{
		"status": label,
		"detail": result,
	})
}

// MetricsController 指标控制器
type MetricsController struct {
	web.Controller
	Handler http.Handler
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	c.Handler.ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
