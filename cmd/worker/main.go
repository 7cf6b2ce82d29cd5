// Package main 是 DNS 开通工作进程的入口点
// 工作进程消费开通任务、执行开通动作，并运行滞留请求巡检
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

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/metrics"
	"github.com/oriys/dnsflow/internal/provisioner"
	"github.com/oriys/dnsflow/internal/queue"
	"github.com/oriys/dnsflow/internal/storage"
	"github.com/oriys/dnsflow/internal/telemetry"
	"github.com/oriys/dnsflow/internal/worker"
)

func main() {
	configPath := flag.String("config", "/etc/dnsflow/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := telemetry.NewLogger(cfg.Logging)
	logger.Info("Starting DNS provision worker")

	telShutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
	} else {
		defer telShutdown(context.Background())
	}

	pgStore, err := storage.NewPostgresStore(cfg.Storage.Postgres, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer pgStore.Close()

	// Redis 只用于巡检租约，连接失败时巡检按单副本运行
	var redisStore *storage.RedisStore
	if rs, err := storage.NewRedisStore(cfg.Storage.Redis); err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis, reconciler runs without lease")
	} else {
		redisStore = rs
		defer redisStore.Close()
	}

	taskQueue, err := queue.NewTaskQueue(cfg.Queue.NatsURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer taskQueue.Close()

	m := metrics.NewCollector(cfg.Metrics.Namespace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动任务消费
	prov := provisioner.NewRunner(cfg.Provisioner, logger)
	w := worker.New(pgStore, taskQueue, prov, cfg.Worker, m, logger)
	if err := w.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start worker")
	}

	// 启动滞留请求巡检
	var leaser worker.Leaser
	if redisStore != nil {
		leaser = redisStore
	}
	reconciler := worker.NewReconciler(pgStore, leaser, taskQueue, cfg.Reconciler, m, logger)
	if err := reconciler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start reconciler")
	}
	defer reconciler.Stop()

	// 指标服务器
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.WithField("port", cfg.Worker.MetricsPort).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	logger.Info("Worker stopped")
}
