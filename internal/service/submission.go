// Package service 实现了 DNS 编排平台的应用服务层。
// 提交服务负责受理新请求，状态服务负责查询与管理覆盖；
// 两者都只通过小接口依赖存储和队列，便于替换和测试。
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/domain"
	"github.com/oriys/dnsflow/internal/metrics"
)

// RequestStore 是服务层对请求存储的依赖。
type RequestStore interface {
	CreateRequest(ctx context.Context, req *domain.Request) error
	GetRequestByID(ctx context.Context, id string) (*domain.Request, error)
	OverrideStatus(ctx context.Context, id string, from, to domain.RequestStatus, entry domain.LogEntry) (bool, error)
	ListRecords(ctx context.Context, dnsDomain string, limit int) ([]*domain.Record, error)
}

// JobPublisher 是服务层对任务队列的依赖。
type JobPublisher interface {
	PublishJob(requestID string) error
}

// StatusCache 是状态服务对终态缓存的依赖。
// 实现可以为空（nil 接口由 noopCache 兜底），此时查询全部回源数据库。
type StatusCache interface {
	CacheTerminalStatus(ctx context.Context, req *domain.Request) error
	GetCachedStatus(ctx context.Context, id string) (*domain.Request, error)
	InvalidateStatus(ctx context.Context, id string) error
}

// SubmissionService 受理 DNS 开通请求。
// 受理 = 校验 + 持久化 + 入队；持久化成功即受理成功，
// 入队失败只记录不回滚，滞留的请求由巡检重新入队。
type SubmissionService struct {
	store   RequestStore
	queue   JobPublisher
	metrics *metrics.Collector
	log     *logrus.Logger
}

// NewSubmissionService 创建提交服务。
func NewSubmissionService(store RequestStore, queue JobPublisher, m *metrics.Collector, log *logrus.Logger) *SubmissionService {
	return &SubmissionService{store: store, queue: queue, metrics: m, log: log}
}

// Submit 受理一个新的 DNS 开通请求。
// 校验资源字段，创建 PENDING 请求并持久化，然后投递开通任务。
//
// 返回值：
//   - *domain.Request: 受理成功的请求（含标识符）
//   - error: 校验错误（domain.Err* 哨兵）或持久化失败
func (s *SubmissionService) Submit(ctx context.Context, env *domain.CreateRequestEnvelope) (*domain.Request, error) {
	res := env.Resource
	if err := domain.ValidateResource(res.RecordType, res.Domain, res.Target, res.Config); err != nil {
		s.metrics.SubmitErrors.WithLabelValues("validation").Inc()
		return nil, err
	}

	env.Context.ApplyDefaults()
	req := domain.NewRequest(res.RecordType, res.Domain, res.Target, res.Comment,
		env.Context.Source, env.Context.AccountID, res.Config)

	if err := s.store.CreateRequest(ctx, req); err != nil {
		s.metrics.SubmitErrors.WithLabelValues("storage").Inc()
		return nil, err
	}
	s.metrics.RequestsSubmitted.WithLabelValues(req.Source).Inc()

	// 入队失败不影响受理结果：请求已落库，巡检会把它重新入队
	if err := s.queue.PublishJob(req.ID); err != nil {
		s.metrics.DispatchErrors.Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": req.ID,
			"domain":     req.Domain,
		}).Error("Failed to enqueue provision job, reconciler will retry")
	} else {
		s.log.WithFields(logrus.Fields{
			"request_id":  req.ID,
			"record_type": req.RecordType,
			"domain":      req.Domain,
			"source":      req.Source,
		}).Info("DNS request accepted")
	}

	return req, nil
}
