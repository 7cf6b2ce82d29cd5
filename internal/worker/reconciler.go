package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/metrics"
)

// PendingLister 是巡检对存储的依赖。
type PendingLister interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Leaser 是巡检对租约存储的依赖。多副本部署下互斥一轮巡检。
type Leaser interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name string) error
}

// Requeuer 是巡检对任务队列的依赖。
type Requeuer interface {
	PublishJob(requestID string) error
}

// 巡检租约名
const reconcileLease = "reconciler"

// Reconciler 周期性扫描滞留的 PENDING 请求并重新入队。
// 入队失败或消息丢失的请求靠它兜底；幂等保护保证重复入队无副作用。
type Reconciler struct {
	store   PendingLister
	leaser  Leaser
	queue   Requeuer
	cfg     config.ReconcilerConfig
	metrics *metrics.Collector
	log     *logrus.Logger
	cron    *cron.Cron
}

// NewReconciler 创建巡检器。leaser 传 nil 时跳过租约互斥（单副本部署）。
func NewReconciler(store PendingLister, leaser Leaser, q Requeuer, cfg config.ReconcilerConfig, m *metrics.Collector, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, leaser: leaser, queue: q, cfg: cfg, metrics: m, log: log}
}

// Start 按配置的周期调度巡检。
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("Reconciler disabled")
		return nil
	}

	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.cfg.Interval)
	if _, err := r.cron.AddFunc(spec, func() {
		if err := r.runOnce(ctx); err != nil {
			r.log.WithError(err).Error("Reconcile sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	r.cron.Start()
	r.log.WithField("interval", r.cfg.Interval).Info("Reconciler started")
	return nil
}

// Stop 停止调度并等待进行中的巡检结束。
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// runOnce 执行一轮巡检：取租约、扫描滞留请求、逐个重新入队。
func (r *Reconciler) runOnce(ctx context.Context) error {
	if r.leaser != nil {
		ok, err := r.leaser.AcquireLease(ctx, reconcileLease, r.cfg.LeaseTTL)
		if err != nil {
			// Redis 故障时继续巡检：重复入队是无害的
			r.log.WithError(err).Warn("Lease acquisition failed, sweeping anyway")
		} else if !ok {
			r.log.Debug("Reconcile lease held by another replica, skipping")
			return nil
		} else {
			defer r.leaser.ReleaseLease(ctx, reconcileLease)
		}
	}

	cutoff := time.Now().Add(-r.cfg.PendingAge)
	ids, err := r.store.ListPendingOlderThan(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale pending: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	requeued := 0
	for _, id := range ids {
		if err := r.queue.PublishJob(id); err != nil {
			r.log.WithError(err).WithField("request_id", id).Warn("Failed to requeue stale request")
			continue
		}
		requeued++
	}
	r.metrics.ReconcileRequeued.Add(float64(requeued))
	r.log.WithFields(logrus.Fields{
		"stale":    len(ids),
		"requeued": requeued,
	}).Info("Reconcile sweep re-enqueued stale pending requests")
	return nil
}
