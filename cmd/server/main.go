package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aihub/commerce-go/app/bootstrap"
	"github.com/aihub/commerce-go/app/router"
	"github.com/aihub/commerce-go/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	port, err := strconv.Atoi(app.Config.Server.Port)
	if err != nil {
		log.Fatalf("invalid server port %q: %v", app.Config.Server.Port, err)
	}

	var metricsPath string
	if app.Config.Prometheus.Enabled {
		metricsPath = app.Config.Prometheus.Path
	}
	opts := router.Options{
		Container:   app.Container,
		Health:      app.Database,
		MetricsPath: metricsPath,
	}
	if app.Config.Prometheus.Enabled {
		opts.Gatherer = app.Registry
	}
	if err := router.Init(opts); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	// 配置Beego全局设置
	web.BConfig.AppName = "Commerce Service"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = port
	if app.Config.Server.Env == "production" {
		web.BConfig.RunMode = web.PROD
	}

	go func() {
		logger.Info("🚀 Starting Commerce Service", zap.Int("port", port))
		web.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Commerce Service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if web.BeeApp.Server != nil {
		if err := web.BeeApp.Server.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}
}
