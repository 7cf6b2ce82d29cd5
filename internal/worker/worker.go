// Package worker 实现了 DNS 开通的工作进程。
// 工作进程从任务队列消费开通任务，执行开通动作并把结果原子提交回存储。
// 队列按至少一次投递，幂等保护在这里：已终态的请求直接确认丢弃。
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
	"github.com/oriys/dnsflow/internal/metrics"
	"github.com/oriys/dnsflow/internal/provisioner"
	"github.com/oriys/dnsflow/internal/queue"
)

// Store 是工作进程对存储的依赖。
type Store interface {
	GetRequestByID(ctx context.Context, id string) (*domain.Request, error)
	CompleteRequest(ctx context.Context, id string, entry domain.LogEntry, rec *domain.Record) (bool, error)
	FailRequest(ctx context.Context, id string, entry domain.LogEntry) (bool, error)
}

// JobConsumer 是工作进程对任务队列的依赖。
type JobConsumer interface {
	ConsumeJobs(workers int, handler func(job queue.ProvisionJob) error) error
}

// Worker 消费开通任务并推进请求状态。
type Worker struct {
	store   Store
	queue   JobConsumer
	prov    provisioner.Provisioner
	cfg     config.WorkerConfig
	metrics *metrics.Collector
	log     *logrus.Logger
}

// New 创建工作进程。
func New(store Store, q JobConsumer, prov provisioner.Provisioner, cfg config.WorkerConfig, m *metrics.Collector, log *logrus.Logger) *Worker {
	return &Worker{store: store, queue: q, prov: prov, cfg: cfg, metrics: m, log: log}
}

// Start 按配置的并发数注册队列消费。
// 每个消费成员同一时刻处理一条任务；process 无共享可变状态，可安全并发。
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.ConsumeJobs(w.cfg.Workers, func(job queue.ProvisionJob) error {
		return w.process(ctx, job)
	}); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	w.log.WithField("workers", w.cfg.Workers).Info("DNS provision worker started")
	return nil
}

// process 处理一条开通任务。
// 返回 nil 表示消息可以确认（包括幂等丢弃和未知请求）；
// 返回错误表示瞬时故障，消息会被重投。
func (w *Worker) process(ctx context.Context, job queue.ProvisionJob) error {
	logger := w.log.WithField("request_id", job.RequestID)

	req, err := w.store.GetRequestByID(ctx, job.RequestID)
	if errors.Is(err, domain.ErrRequestNotFound) {
		// 任务引用了未知请求：确认丢弃，重投也不会变好
		w.metrics.UnknownJobs.Inc()
		logger.Warn("Provision job references unknown request, dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}

	// 幂等保护：重复投递的已终态请求直接确认，不重复开通
	if req.Terminal() {
		w.metrics.IdempotentDrops.Inc()
		logger.WithField("status", req.Status).Debug("Request already terminal, dropping duplicate delivery")
		return nil
	}

	provCtx, cancel := context.WithTimeout(ctx, w.cfg.ProvisionTimeout)
	defer cancel()

	start := time.Now()
	provErr := w.prov.Provision(provCtx, req)
	w.metrics.ProvisionDuration.Observe(time.Since(start).Seconds())

	if provErr != nil {
		return w.commitFailure(ctx, req, provErr, logger)
	}
	return w.commitSuccess(ctx, req, logger)
}

// commitSuccess 原子提交开通成功：状态、成功日志、派生记录同事务落库。
// 提交未生效（请求已被并发推进到终态）按幂等丢弃处理。
func (w *Worker) commitSuccess(ctx context.Context, req *domain.Request, logger *logrus.Entry) error {
	entry := domain.NewLogEntry(domain.LogSuccess, "DNS record provisioned successfully.")
	rec := domain.NewRecordFromRequest(req)

	ok, err := w.store.CompleteRequest(ctx, req.ID, entry, rec)
	if errors.Is(err, domain.ErrDuplicateRecord) {
		w.metrics.IdempotentDrops.Inc()
		logger.Warn("Record already exists for request, dropping duplicate delivery")
		return nil
	}
	if err != nil {
		// 开通已发生但结果写不进去：降级为失败终态，避免请求滞留后被重复开通
		logger.WithError(err).Error("Failed to commit completion, falling back to FAILED")
		return w.commitFailure(ctx, req, fmt.Errorf("commit completion: %w", err), logger)
	}
	if !ok {
		w.metrics.IdempotentDrops.Inc()
		logger.Debug("Request no longer pending at commit time, dropping")
		return nil
	}

	w.metrics.ProvisionTotal.WithLabelValues("completed").Inc()
	logger.WithFields(logrus.Fields{
		"record_id": rec.ID,
		"domain":    rec.Domain,
	}).Info("DNS request completed")
	return nil
}

// commitFailure 原子提交开通失败：状态 FAILED 加错误日志。
// 提交本身失败时按配置的次数退避重试；重试耗尽返回错误让消息重投。
func (w *Worker) commitFailure(ctx context.Context, req *domain.Request, cause error, logger *logrus.Entry) error {
	entry := domain.NewLogEntry(domain.LogError, fmt.Sprintf("Provisioning failed: %v", cause))

	var lastErr error
	for attempt := 0; attempt <= w.cfg.CommitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.cfg.CommitBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		ok, err := w.store.FailRequest(ctx, req.ID, entry)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			w.metrics.IdempotentDrops.Inc()
			logger.Debug("Request no longer pending at failure commit, dropping")
			return nil
		}

		w.metrics.ProvisionTotal.WithLabelValues("failed").Inc()
		logger.WithError(cause).Warn("DNS request failed")
		return nil
	}

	return fmt.Errorf("commit failure after %d retries: %w", w.cfg.CommitRetries, lastErr)
}
