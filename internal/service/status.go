package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/domain"
)

// StatusService 提供请求状态查询和管理覆盖。
// 终态请求的查询走 Redis 读穿缓存：终态不可变，缓存永远不会过期失效到错误数据。
type StatusService struct {
	store RequestStore
	cache StatusCache
	log   *logrus.Logger
}

// NewStatusService 创建状态服务。cache 传 nil 时查询全部回源数据库。
func NewStatusService(store RequestStore, cache StatusCache, log *logrus.Logger) *StatusService {
	if cache == nil {
		cache = noopCache{}
	}
	return &StatusService{store: store, cache: cache, log: log}
}

// GetStatus 查询请求的当前状态与完整日志序列。
// 未知标识符返回 domain.ErrRequestNotFound。
func (s *StatusService) GetStatus(ctx context.Context, id string) (*domain.Request, error) {
	if cached, err := s.cache.GetCachedStatus(ctx, id); err != nil {
		// 缓存故障降级为直读数据库
		s.log.WithError(err).Debug("Status cache read failed, falling back to database")
	} else if cached != nil {
		return cached, nil
	}

	req, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Terminal() {
		if err := s.cache.CacheTerminalStatus(ctx, req); err != nil {
			s.log.WithError(err).Debug("Failed to cache terminal status")
		}
	}
	return req, nil
}

// SetStatus 管理接口的状态覆盖。
// 只接受把 PENDING 请求置为终态；状态值未知返回 domain.ErrInvalidStatus，
// 回退或重复置终态返回 domain.ErrInvalidTransition。
func (s *StatusService) SetStatus(ctx context.Context, id string, status domain.RequestStatus, message string) (*domain.Request, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	req, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(req.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, req.Status, status)
	}

	severity := domain.LogSuccess
	if status == domain.StatusFailed {
		severity = domain.LogError
	}
	if message == "" {
		message = fmt.Sprintf("Status manually set to %s.", status)
	}
	entry := domain.NewLogEntry(severity, message)

	ok, err := s.store.OverrideStatus(ctx, id, req.Status, status, entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 读取和覆盖之间状态被工作进程抢先推进
		return nil, fmt.Errorf("%w: request is no longer %s", domain.ErrInvalidTransition, req.Status)
	}

	if err := s.cache.InvalidateStatus(ctx, id); err != nil {
		s.log.WithError(err).Debug("Failed to invalidate status cache")
	}

	s.log.WithFields(logrus.Fields{
		"request_id": id,
		"status":     status,
	}).Info("Request status overridden")

	return s.store.GetRequestByID(ctx, id)
}

// ListRecords 列出已开通的记录。
func (s *StatusService) ListRecords(ctx context.Context, dnsDomain string, limit int) ([]*domain.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListRecords(ctx, dnsDomain, limit)
}

// noopCache 是缓存缺省实现，所有操作为空操作。
type noopCache struct{}

func (noopCache) CacheTerminalStatus(context.Context, *domain.Request) error { return nil }
func (noopCache) GetCachedStatus(context.Context, string) (*domain.Request, error) {
	return nil, nil
}
func (noopCache) InvalidateStatus(context.Context, string) error { return nil }
