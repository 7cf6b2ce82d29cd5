// Package main 是消息接入桥的入口点
// 接入桥消费外部系统投递的 DNS 开通消息，翻译后提交到网关
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/bridge"
	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/gatewayclient"
	"github.com/oriys/dnsflow/internal/metrics"
	"github.com/oriys/dnsflow/internal/queue"
	"github.com/oriys/dnsflow/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "/etc/dnsflow/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := telemetry.NewLogger(cfg.Logging)
	logger.WithField("gateway", cfg.Bridge.GatewayURL).Info("Starting DNS ingest bridge")

	taskQueue, err := queue.NewTaskQueue(cfg.Queue.NatsURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer taskQueue.Close()

	m := metrics.NewCollector(cfg.Metrics.Namespace)
	gateway := gatewayclient.New(cfg.Bridge.GatewayURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bridge.New(taskQueue, gateway, cfg.Bridge, m, logger)
	if err := b.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start ingest bridge")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Ingest bridge stopped")
}
