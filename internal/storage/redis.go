package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
)

// RedisStore 提供两类辅助能力：
//  1. 终态请求的状态缓存：终态不可变，可以安全地缓存整份请求快照，
//     为状态查询接口挡掉对 PostgreSQL 的重复读。
//  2. 巡检租约：多副本部署时用 SetNX 互斥，同一时刻只有一个副本执行巡检。
//
// Redis 不可用时上述能力退化为直读数据库/单副本巡检，不影响正确性。
type RedisStore struct {
	client   *redis.Client
	cacheTTL time.Duration
}

// 缓存与租约的键前缀
const (
	statusCachePrefix = "dnsflow:status:"
	leasePrefix       = "dnsflow:lease:"
)

// NewRedisStore 创建 Redis 存储实例并验证连通性。
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, cacheTTL: cfg.StatusCacheTTL}, nil
}

// CacheTerminalStatus 缓存一个终态请求的完整快照。
// 非终态请求不缓存（状态还会变化）。
func (s *RedisStore) CacheTerminalStatus(ctx context.Context, req *domain.Request) error {
	if !req.Terminal() {
		return nil
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return s.client.Set(ctx, statusCachePrefix+req.ID, data, s.cacheTTL).Err()
}

// GetCachedStatus 读取缓存的请求快照。
// 缓存未命中返回 (nil, nil)，由调用方回源数据库。
func (s *RedisStore) GetCachedStatus(ctx context.Context, id string) (*domain.Request, error) {
	data, err := s.client.Get(ctx, statusCachePrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached status: %w", err)
	}
	req := &domain.Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("unmarshal cached status: %w", err)
	}
	return req, nil
}

// InvalidateStatus 删除请求的状态缓存。管理接口覆盖状态后调用。
func (s *RedisStore) InvalidateStatus(ctx context.Context, id string) error {
	return s.client.Del(ctx, statusCachePrefix+id).Err()
}

// AcquireLease 尝试获取一个命名租约。
// 返回 true 表示获取成功，租约在 ttl 后自动过期。
func (s *RedisStore) AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, leasePrefix+name, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

// ReleaseLease 主动释放租约。巡检一轮结束后调用，让下一轮尽早可调度。
func (s *RedisStore) ReleaseLease(ctx context.Context, name string) error {
	return s.client.Del(ctx, leasePrefix+name).Err()
}

// Ping 检查 Redis 连通性，供就绪探针使用。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
