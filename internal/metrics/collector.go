// Package metrics 提供了 Prometheus 指标收集功能。
// 指标覆盖提交、投递、开通、幂等丢弃和巡检各环节，
// 通过 /metrics 端点暴露给 Prometheus 抓取。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 持有平台的所有 Prometheus 指标。
type Collector struct {
	// RequestsSubmitted 按来源统计的受理请求数
	RequestsSubmitted *prometheus.CounterVec
	// SubmitErrors 提交阶段的校验/持久化失败数
	SubmitErrors *prometheus.CounterVec
	// DispatchErrors 受理成功但入队失败的次数（由巡检兜底）
	DispatchErrors prometheus.Counter
	// ProvisionTotal 按结果统计的开通动作数
	ProvisionTotal *prometheus.CounterVec
	// ProvisionDuration 开通动作耗时分布
	ProvisionDuration prometheus.Histogram
	// IdempotentDrops 因请求已终态而放弃的重复投递数
	IdempotentDrops prometheus.Counter
	// UnknownJobs 引用未知请求的任务数
	UnknownJobs prometheus.Counter
	// PendingRequests 当前处于 PENDING 的请求数
	PendingRequests prometheus.Gauge
	// ReconcileRequeued 巡检重新入队的滞留请求数
	ReconcileRequeued prometheus.Counter
	// BridgeMessages 按结果统计的接入桥消息数
	BridgeMessages *prometheus.CounterVec
}

// NewCollector 创建并注册所有指标。
//
// 参数：
//   - namespace: 指标命名空间前缀
func NewCollector(namespace string) *Collector {
	return &Collector{
		RequestsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_submitted_total",
			Help:      "Total number of accepted DNS requests by source",
		}, []string{"source"}),
		SubmitErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_errors_total",
			Help:      "Total number of rejected or failed submissions by reason",
		}, []string{"reason"}),
		DispatchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of accepted requests that failed to enqueue",
		}),
		ProvisionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_total",
			Help:      "Total number of provisioning attempts by outcome",
		}, []string{"outcome"}),
		ProvisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Duration of provisioning actions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		IdempotentDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotent_drops_total",
			Help:      "Total number of duplicate deliveries dropped because the request was already terminal",
		}),
		UnknownJobs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_jobs_total",
			Help:      "Total number of jobs referencing an unknown request",
		}),
		PendingRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Current number of requests in PENDING state",
		}),
		ReconcileRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_requeued_total",
			Help:      "Total number of stale pending requests re-enqueued by the reconciler",
		}),
		BridgeMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Total number of ingest bridge messages by outcome",
		}, []string{"outcome"}),
	}
}
