// Package main 是 DNS 编排网关服务的入口点
// 网关负责受理 DNS 开通请求、提供状态查询和管理覆盖接口
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/api"
	"github.com/oriys/dnsflow/internal/auth"
	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/metrics"
	"github.com/oriys/dnsflow/internal/queue"
	"github.com/oriys/dnsflow/internal/service"
	"github.com/oriys/dnsflow/internal/storage"
	"github.com/oriys/dnsflow/internal/telemetry"
)

// main 初始化所有依赖组件并启动 HTTP 服务器。
func main() {
	// 解析命令行参数，获取配置文件路径
	configPath := flag.String("config", "/etc/dnsflow/config.yaml", "Path to config file")
	flag.Parse()

	// 加载配置文件
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	// 设置结构化日志记录器
	logger := telemetry.NewLogger(cfg.Logging)
	logger.Info("Starting DNS orchestration gateway")

	// 初始化遥测系统 (OpenTelemetry)
	// 遥测初始化失败不影响主服务运行，仅记录警告
	telShutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else {
		defer telShutdown(context.Background())
	}

	// 初始化 PostgreSQL 存储
	// PostgreSQL 是请求与记录的权威存储
	pgStore, err := storage.NewPostgresStore(cfg.Storage.Postgres, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer pgStore.Close()

	// 初始化 Redis 存储
	// Redis 提供终态状态缓存；连接失败时降级为直读数据库
	var redisStore *storage.RedisStore
	if rs, err := storage.NewRedisStore(cfg.Storage.Redis); err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis, status caching disabled")
	} else {
		redisStore = rs
		defer redisStore.Close()
	}

	// 连接任务队列
	taskQueue, err := queue.NewTaskQueue(cfg.Queue.NatsURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer taskQueue.Close()

	// 初始化 Prometheus 指标收集器
	m := metrics.NewCollector(cfg.Metrics.Namespace)

	// 启动后台协程，定期刷新 pending 请求数量规
	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	defer metricsCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		update := func() {
			ctx, cancel := context.WithTimeout(metricsCtx, 5*time.Second)
			defer cancel()
			counts, err := pgStore.CountByStatus(ctx)
			if err != nil {
				return
			}
			m.PendingRequests.Set(float64(counts["PENDING"]))
		}
		update()
		for {
			select {
			case <-metricsCtx.Done():
				return
			case <-ticker.C:
				update()
			}
		}
	}()

	// 初始化服务层
	submission := service.NewSubmissionService(pgStore, taskQueue, m, logger)
	var cache service.StatusCache
	if redisStore != nil {
		cache = redisStore
	}
	status := service.NewStatusService(pgStore, cache, logger)

	// 初始化 API 处理器和路由
	handler := api.NewHandler(submission, status, logger, pgStore)
	router := api.NewRouter(handler, logger, auth.Middleware(cfg.Auth))

	// 如果指标端口与主服务端口不同，单独启动指标服务器
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		metricsServer = startMetricsServer(cfg.Server.MetricsPort, logger)
	}

	// 配置并启动主 HTTP 服务器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      telemetry.WrapHandler(router, cfg.Telemetry),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// 等待关闭信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	logger.Info("Gateway stopped")
}

// startMetricsServer 在独立端口启动 Prometheus 指标服务器。
func startMetricsServer(port int, logger *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.WithField("port", port).Info("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Metrics server failed")
		}
	}()
	return server
}
