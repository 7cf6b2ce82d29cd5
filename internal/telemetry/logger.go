package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/dnsflow/internal/config"
)

// NewLogger 按配置创建结构化日志记录器。
// 格式默认 JSON；日志级别解析失败时回退到 info。
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.AddHook(&traceHook{})
	return log
}

// traceHook 把当前 span 的 trace_id/span_id 注入日志字段，
// 便于在日志系统里按追踪标识串联一次请求的所有日志。
type traceHook struct{}

func (h *traceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *traceHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	span := trace.SpanContextFromContext(entry.Context)
	if !span.IsValid() {
		return nil
	}
	entry.Data["trace_id"] = span.TraceID().String()
	entry.Data["span_id"] = span.SpanID().String()
	return nil
}
